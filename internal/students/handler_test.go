package students

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/internal/testutil"
)

type fakePhotos struct {
	keys  []string
	types []string
}

func (f *fakePhotos) Upload(_ context.Context, bucket, key, contentType string, body io.Reader, _ int64) (string, error) {
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	f.keys = append(f.keys, key)
	f.types = append(f.types, contentType)
	return "https://" + bucket + ".s3.amazonaws.com/" + key, nil
}

func (f *fakePhotos) PhotosBucket() string { return "alumni-photos" }

type handlerFixture struct {
	db     *testutil.DB
	photos *fakePhotos
	router *gin.Engine
	asha   *models.Student
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB()
	reg := NewRegistry(db.Students, nil)
	asha, err := reg.Register(context.Background(), Input{FullName: "Asha Rao", Email: "asha@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(context.Background(), Input{FullName: "Ravi Kumar", Phone: "9876543210"}); err != nil {
		t.Fatal(err)
	}
	photos := &fakePhotos{}
	h := NewHandler(reg, db.Students, photos, nil)
	r := gin.New()
	r.GET("/admin/students", h.Search)
	r.GET("/admin/students/:id", h.Get)
	r.POST("/admin/students/:id/photo", h.UploadPhoto)
	return &handlerFixture{db: db, photos: photos, router: r, asha: asha}
}

func (f *handlerFixture) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func (f *handlerFixture) upload(t *testing.T, id string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("photo", "me.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/admin/students/"+id+"/photo", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestHandlerGet(t *testing.T) {
	f := newHandlerFixture(t)
	if w := f.get("/admin/students/" + f.asha.ID.String()); w.Code != http.StatusOK {
		t.Errorf("get: %d %s", w.Code, w.Body.String())
	}
	if w := f.get("/admin/students/" + uuid.NewString()); w.Code != http.StatusNotFound {
		t.Errorf("unknown: %d", w.Code)
	}
	if w := f.get("/admin/students/nope"); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: %d", w.Code)
	}
}

func TestHandlerSearch(t *testing.T) {
	f := newHandlerFixture(t)
	w := f.get("/admin/students?q=ravi")
	if w.Code != http.StatusOK {
		t.Fatalf("search: %d", w.Code)
	}
	var body struct {
		Data []models.Student `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 1 || body.Data[0].FullName != "Ravi Kumar" {
		t.Errorf("results = %+v", body.Data)
	}

	w = f.get("/admin/students?q=nobody")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"data":[]`)) {
		t.Errorf("empty search should return []: %s", w.Body.String())
	}
}

func TestHandlerUploadPhoto(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.upload(t, f.asha.ID.String(), pngHeader)
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	want := "photos/" + f.asha.ID.String() + ".png"
	if len(f.photos.keys) != 1 || f.photos.keys[0] != want || f.photos.types[0] != "image/png" {
		t.Errorf("uploaded %v %v, want %s", f.photos.keys, f.photos.types, want)
	}
	st, _ := f.db.Students.GetByID(context.Background(), f.asha.ID)
	if st.PhotoStorageID != want {
		t.Errorf("photo_storage_id = %q", st.PhotoStorageID)
	}
}

func TestHandlerUploadPhotoRejects(t *testing.T) {
	f := newHandlerFixture(t)

	if w := f.upload(t, f.asha.ID.String(), []byte("%PDF-1.4 not an image")); w.Code != http.StatusBadRequest {
		t.Errorf("pdf: %d", w.Code)
	}
	if w := f.upload(t, uuid.NewString(), pngHeader); w.Code != http.StatusNotFound {
		t.Errorf("unknown student: %d", w.Code)
	}
	if len(f.photos.keys) != 0 {
		t.Errorf("nothing should be stored, got %v", f.photos.keys)
	}
}
