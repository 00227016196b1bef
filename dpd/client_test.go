package dpd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Options{BaseURL: server.URL + "/api/drug", Lang: "en", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestProductsRequestShape(t *testing.T) {
	var gotPath, gotLang, gotType string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLang = r.URL.Query().Get("lang")
		gotType = r.URL.Query().Get("type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"drug_code": 2, "brand_name": "TYLENOL EXTRA STRENGTH", "company_name": "JOHNSON", "drug_identification_number": "00559407"},
			{"drug_code": 7, "brand_name": "ADVIL", "company_name": "PFIZER", "drug_identification_number": "02242704"}
		]`))
	})

	products, err := client.Products(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if gotPath != "/api/drug/drugproduct/" {
		t.Errorf("Expected path /api/drug/drugproduct/, got %s", gotPath)
	}
	if gotLang != "en" || gotType != "json" {
		t.Errorf("Expected lang=en&type=json, got lang=%s type=%s", gotLang, gotType)
	}
	if len(products) != 2 {
		t.Fatalf("Expected 2 products, got %d", len(products))
	}
	if products[0].DrugCode != 2 || products[0].DIN != "00559407" {
		t.Errorf("Unexpected first product: %+v", products[0])
	}
	if products[1].BrandName != "ADVIL" {
		t.Errorf("Expected directory order to be kept, got %+v", products[1])
	}
}

func TestIngredientQueries(t *testing.T) {
	var queries []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Path+"?"+r.URL.RawQuery)
		_, _ = w.Write([]byte(`[{"drug_code": 2, "ingredient_name": "ACETAMINOPHEN", "strength": "500", "strength_unit": "MG"}]`))
	})

	if _, err := client.IngredientsByName(context.Background(), "acetaminophen"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ings, err := client.IngredientsByCode(context.Background(), 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(ings) != 1 || ings[0].Strength != "500" || ings[0].StrengthUnit != "MG" {
		t.Errorf("Unexpected ingredients: %+v", ings)
	}

	if len(queries) != 2 {
		t.Fatalf("Expected 2 requests, got %d", len(queries))
	}
	if !strings.Contains(queries[0], "/activeingredient/") || !strings.Contains(queries[0], "ingredientname=acetaminophen") {
		t.Errorf("Unexpected by-name query: %s", queries[0])
	}
	if !strings.Contains(queries[1], "id=2") {
		t.Errorf("Unexpected by-code query: %s", queries[1])
	}
}

func TestSingleObjectIsOneRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"drug_code": 2, "pharmaceutical_form_code": 33, "pharmaceutical_form_name": "TABLET"}`))
	})

	forms, err := client.Forms(context.Background(), 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(forms) != 1 || forms[0].FormName != "TABLET" || forms[0].FormCode != 33 {
		t.Errorf("Expected one TABLET form, got %+v", forms)
	}
}

func TestEmptyBodyIsNoRecords(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("  \n"))
	})

	forms, err := client.Forms(context.Background(), 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(forms) != 0 {
		t.Errorf("Expected no forms, got %+v", forms)
	}
}

func TestLatin1Fallback(t *testing.T) {
	// "COMPRIMÉ" encoded as ISO-8859-1
	body := append([]byte(`[{"drug_code": 2, "pharmaceutical_form_name": "COMPRIM`), 0xC9)
	body = append(body, []byte(`"}]`)...)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	})

	forms, err := client.Forms(context.Background(), 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(forms) != 1 || forms[0].FormName != "COMPRIMÉ" {
		t.Errorf("Expected COMPRIMÉ, got %+v", forms)
	}
}

func TestUnexpectedStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	_, err := client.Products(context.Background())
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("Expected ErrUnexpectedStatus, got %v", err)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected *StatusError, got %T", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway || statusErr.Endpoint != "drugproduct" {
		t.Errorf("Unexpected status error: %+v", statusErr)
	}

	status := client.Status()
	if !status.Failing() {
		t.Error("Expected directory status to be failing")
	}
	if !strings.Contains(status.LastError, "502") {
		t.Errorf("Expected last error to mention 502, got %q", status.LastError)
	}
}

func TestMalformedJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"drug_code": "not a number"}]`))
	})

	if _, err := client.Products(context.Background()); err == nil {
		t.Fatal("Expected decode error, got nil")
	}
}

func TestSuccessClearsFailingStatus(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	_, _ = client.Products(context.Background())
	if !client.Status().Failing() {
		t.Fatal("Expected failing status after 500")
	}

	time.Sleep(time.Millisecond)
	fail.Store(false)
	if _, err := client.Products(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if client.Status().Failing() {
		t.Error("Expected status to recover after a successful call")
	}
}

func TestCanceledCallIsNotAFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Products(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if client.Status().Failing() {
		t.Error("A canceled call must not mark the directory as failing")
	}
}

func TestThrottleHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client, err := NewClient(Options{BaseURL: server.URL, Rate: 0.5, Burst: 1})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if _, err := client.Products(context.Background()); err != nil {
		t.Fatalf("First call should use the burst token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = client.Products(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded while throttled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Throttled call should return as soon as the context expires")
	}
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"absolute https", "https://health-products.canada.ca/api/drug/", false},
		{"missing trailing slash", "https://health-products.canada.ca/api/drug", false},
		{"relative", "/api/drug/", true},
		{"garbage", "://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(Options{BaseURL: tt.baseURL})
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.baseURL)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			got := client.endpointURL("form", nil)
			if !strings.HasPrefix(got, "https://health-products.canada.ca/api/drug/form/?") {
				t.Errorf("Unexpected endpoint URL %s", got)
			}
			if client.lang != "en" {
				t.Errorf("Expected default lang en, got %s", client.lang)
			}
		})
	}
}
