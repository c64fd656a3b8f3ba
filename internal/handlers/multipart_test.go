package handlers

import (
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ipfsgate/ipfsgate/internal/config"
)

// initiateResult mirrors the CreateMultipartUpload response body.
type initiateResult struct {
	Bucket   string `xml:"Bucket"`
	Key      string `xml:"Key"`
	UploadID string `xml:"UploadId"`
}

// completeResult mirrors the CompleteMultipartUpload response body.
type completeResult struct {
	Bucket string `xml:"Bucket"`
	Key    string `xml:"Key"`
	ETag   string `xml:"ETag"`
}

func createUpload(t *testing.T, g *testGateway, path string) string {
	t.Helper()
	w := g.do(httptest.NewRequest(http.MethodPost, path+"?uploads", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("CreateMultipartUpload = %d, want 200", w.Code)
	}
	var result initiateResult
	if err := xml.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("parsing initiate response: %v", err)
	}
	if len(result.UploadID) != 12 {
		t.Fatalf("UploadId %q is not 12 characters", result.UploadID)
	}
	return result.UploadID
}

func TestMultipartRoundTrip(t *testing.T) {
	g := newTestGateway(t, nil)

	uploadID := createUpload(t, g, "/b/k")

	// Parts arrive out of order.
	w := g.do(httptest.NewRequest(http.MethodPut,
		"/b/k?uploadId="+uploadID+"&partNumber=2", strings.NewReader("lo")))
	if w.Code != http.StatusOK {
		t.Fatalf("UploadPart 2 = %d, want 200", w.Code)
	}
	w = g.do(httptest.NewRequest(http.MethodPut,
		"/b/k?uploadId="+uploadID+"&partNumber=1", strings.NewReader("hel")))
	if w.Code != http.StatusOK {
		t.Fatalf("UploadPart 1 = %d, want 200", w.Code)
	}

	w = g.do(httptest.NewRequest(http.MethodPost, "/b/k?uploadId="+uploadID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("CompleteMultipartUpload = %d, want 200", w.Code)
	}
	var result completeResult
	if err := xml.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("parsing complete response: %v", err)
	}
	wantETag := "W/" + fakeCID([]byte("hello"))
	if result.Bucket != "b" || result.Key != "k" || result.ETag != wantETag {
		t.Errorf("complete result = %+v, want b/k with ETag %s", result, wantETag)
	}

	get := g.do(httptest.NewRequest(http.MethodGet, "/b/k", nil))
	if get.Code != http.StatusOK || get.Body.String() != "hello" {
		t.Errorf("GET assembled object = %d %q, want 200 %q", get.Code, get.Body.String(), "hello")
	}

	// The upload is consumed: completing again is a client error.
	if w := g.do(httptest.NewRequest(http.MethodPost, "/b/k?uploadId="+uploadID, nil)); w.Code != http.StatusBadRequest {
		t.Errorf("second complete = %d, want 400", w.Code)
	}
}

func TestUploadPartUnknownUpload(t *testing.T) {
	g := newTestGateway(t, nil)
	w := g.do(httptest.NewRequest(http.MethodPut,
		"/b/k?uploadId=nosuchupload&partNumber=1", strings.NewReader("x")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("UploadPart for unknown upload = %d, want 400", w.Code)
	}
}

func TestUploadPartBadPartNumber(t *testing.T) {
	g := newTestGateway(t, nil)
	uploadID := createUpload(t, g, "/b/k")

	for _, pn := range []string{"abc", "", "999"} {
		w := g.do(httptest.NewRequest(http.MethodPut,
			"/b/k?uploadId="+uploadID+"&partNumber="+pn, strings.NewReader("x")))
		if w.Code != http.StatusBadRequest {
			t.Errorf("UploadPart partNumber=%q = %d, want 400", pn, w.Code)
		}
	}
}

func TestMultipartCapacity(t *testing.T) {
	g := newTestGateway(t, func(cfg *config.Config) {
		cfg.ConcurrentMultipartUpload = 1
	})

	uploadID := createUpload(t, g, "/b/k1")

	if w := g.do(httptest.NewRequest(http.MethodPost, "/b/k2?uploads", nil)); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("create at capacity = %d, want 503", w.Code)
	}

	// Aborting frees the slot.
	if w := g.do(httptest.NewRequest(http.MethodDelete, "/b/k1?uploadId="+uploadID, nil)); w.Code != http.StatusNoContent {
		t.Fatalf("abort = %d, want 204", w.Code)
	}
	createUpload(t, g, "/b/k2")
}

func TestAbortUnknownUpload(t *testing.T) {
	g := newTestGateway(t, nil)
	// Abort is idempotent; unknown ids still get 204.
	w := g.do(httptest.NewRequest(http.MethodDelete, "/b/k?uploadId=nosuchupload", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("abort unknown = %d, want 204", w.Code)
	}
}

func TestPostObjectWithoutMultipartParams(t *testing.T) {
	g := newTestGateway(t, nil)
	w := g.do(httptest.NewRequest(http.MethodPost, "/b/k", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bare POST on object = %d, want 400", w.Code)
	}
}
