// Package testserver is an in-memory marketplace double the harness's own
// tests run against. The production harness never mocks the network; this
// exists so package tests are hermetic.
package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

type Ad struct {
	ID           int
	ListingID    int
	Slug         string
	State        string
	Fields       map[string]any
	FeaturedTill string
}

type Server struct {
	Router *mux.Router

	mu       sync.Mutex
	ads      map[int]*Ad
	nextID   int
	payments map[string]*payment

	// Logins counts login round-trips; the cache uniqueness test reads it.
	Logins int

	// Credits preloads the balance buckets.
	Credits map[string]int

	// SearchResults is the canned result page for search paths.
	SearchResults []map[string]any

	// RefreshStatus lets a test force the 304 reactivate answer.
	RefreshStatus int
}

type payment struct {
	pollsLeft int
	weeks     int
	sID       int
	sType     string
	status    string
}

func New() *Server {
	s := &Server{
		ads:      map[int]*Ad{},
		nextID:   12344,
		payments: map[string]*payment{},
		Credits:  map[string]int{},
		SearchResults: []map[string]any{
			{
				"ad_id":           901,
				"make":            "Toyota",
				"model":           "Corolla",
				"city_name":       "Karachi",
				"transmission":    "Automatic",
				"price":           2200000,
				"engine_capacity": "1300 cc",
				"mileage":         "45,000 km",
				"model_year":      2018,
				"user":            map[string]any{"user_type": "Dealer"},
			},
			{
				"ad_id":           902,
				"make":            "Toyota",
				"model":           "Corolla",
				"city_name":       "Karachi",
				"transmission":    "Automatic",
				"price":           2350000,
				"engine_capacity": "1600 cc",
				"mileage":         "656,000 km",
				"model_year":      2020,
				"user":            map[string]any{"user_type": "Individual"},
			},
		},
	}
	s.Router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// Ad returns a stored ad for assertions.
func (s *Server) Ad(id int) *Ad {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ads[id]
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	// auth
	r.HandleFunc("/oauth/token.json", s.handleEmailLogin).Methods(http.MethodPost)
	r.HandleFunc("/clear-number", s.ok(map[string]any{"success": true})).Methods(http.MethodGet)
	r.HandleFunc("/login-with-mobile.json", s.ok(map[string]any{"pin_id": "pin-mobile-1"})).Methods(http.MethodPost)
	r.HandleFunc("/login-with-mobile/verify.json", s.handleMobileVerify).Methods(http.MethodPost)
	r.HandleFunc("/users.json", s.handleSignup).Methods(http.MethodPost)
	r.HandleFunc("/login-with-email/verify.json", s.handleMobileVerify).Methods(http.MethodPost)
	r.HandleFunc("/oauth/expire.json", s.ok(map[string]any{"success": true})).Methods(http.MethodGet)

	// picture upload: raw body is rejected, multipart succeeds
	r.HandleFunc("/pictures.json", s.handleUpload).Methods(http.MethodPost)

	// payments
	r.HandleFunc("/products.json", s.auth(s.handleProducts)).Methods(http.MethodGet)
	r.HandleFunc("/credits.json", s.auth(s.handleCredits)).Methods(http.MethodGet)
	r.HandleFunc("/proceed-to-checkout.json", s.auth(s.handleCheckout)).Methods(http.MethodPost)
	r.HandleFunc("/jazz-cash/initiate.json", s.auth(s.handleWallet)).Methods(http.MethodPost)
	r.HandleFunc("/payment-status.json", s.auth(s.handleStatus)).Methods(http.MethodGet)

	// my-ads
	r.HandleFunc("/users/my-ads.json", s.auth(s.handleMyAds)).Methods(http.MethodGet)

	// lead forms
	for _, p := range []string{"/car-insurance/lead.json", "/car-finance/lead.json", "/registration-transfer/lead.json", "/sell-it-for-me/lead.json"} {
		r.HandleFunc(p, s.auth(s.handleLeadCreate)).Methods(http.MethodPost)
	}
	r.PathPrefix("/car-insurance/lead/").HandlerFunc(s.auth(s.okf(map[string]any{"success": true})))
	r.PathPrefix("/car-finance/lead/").HandlerFunc(s.auth(s.okf(map[string]any{"success": true})))
	r.PathPrefix("/registration-transfer/lead/").HandlerFunc(s.auth(s.okf(map[string]any{"success": true})))
	r.HandleFunc("/sell-it-for-me/get_assignees_free_slots.json", s.auth(s.handleSifmSlots)).Methods(http.MethodGet)
	r.PathPrefix("/sell-it-for-me/lead/").HandlerFunc(s.auth(s.okf(map[string]any{"success": true})))
	r.HandleFunc("/carsure/request.json", s.auth(s.handleLeadCreate)).Methods(http.MethodPost)
	r.HandleFunc("/carsure/free-slots.json", s.auth(s.handleCarsureSlots)).Methods(http.MethodGet)
	r.PathPrefix("/carsure/request/").HandlerFunc(s.auth(s.okf(map[string]any{"success": true})))
	r.HandleFunc("/auction-sheet/verify.json", s.auth(s.okf(map[string]any{"verified": true}))).Methods(http.MethodPost)
	r.HandleFunc("/auction-sheet/request.json", s.auth(s.handleLeadCreate)).Methods(http.MethodPost)
	r.HandleFunc("/auction-sheet/products.json", s.auth(s.okf(map[string]any{
		"products": []any{map[string]any{"id": 31, "name": "Auction Sheet", "price": 1500}},
	}))).Methods(http.MethodGet)

	// typed ad trees: create, details, edit, close, refresh, activate, search
	for prefix, typed := range map[string]string{
		"/used-cars":               "used_car",
		"/used-bikes":              "used_bike",
		"/accessories-spare-parts": "accessory",
	} {
		r.HandleFunc(prefix+".json", s.auth(s.handleCreate(prefix, typed))).Methods(http.MethodPost)
		r.PathPrefix(prefix + "/").HandlerFunc(s.auth(s.handleAdTree(prefix, typed)))
	}
	return r
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing token"})
			return
		}
		next(w, r)
	}
}

func (s *Server) ok(body map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, body)
	}
}

func (s *Server) okf(body map[string]any) http.HandlerFunc { return s.ok(body) }

func (s *Server) handleEmailLogin(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.Logins++
	n := s.Logins
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": fmt.Sprintf("tok-email-%d", n),
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (s *Server) handleMobileVerify(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.Logins++
	n := s.Logins
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"access_token": fmt.Sprintf("tok-mobile-%d", n), "token_type": "Bearer"},
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "sign-up must be unauthenticated"})
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	email := ""
	if user, ok := body["user"].(map[string]any); ok {
		email, _ = user["email"].(string)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"pin_id": "pin-email-9", "email": email})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/form-data") {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{"error": "send multipart"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"picture": map[string]any{"id": 77}})
}

func (s *Server) handleCreate(prefix, typed string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		fields, _ := body[typed].(map[string]any)
		if fields == nil {
			fields = map[string]any{}
		}

		s.mu.Lock()
		s.nextID++
		ad := &Ad{
			ID:        s.nextID,
			ListingID: s.nextID + 500000,
			Slug:      fmt.Sprintf("%s/listing-%d", prefix, s.nextID),
			State:     "st_live",
			Fields:    fields,
		}
		s.ads[ad.ID] = ad
		s.mu.Unlock()

		writeJSON(w, http.StatusOK, map[string]any{
			"ad_listing": map[string]any{"ad_id": ad.ID, "id": ad.ListingID, "slug": ad.Slug},
			typed:        fields,
		})
	}
}

// handleAdTree serves everything under /used-cars/ (and siblings): search,
// details by id or slug, edit, close, refresh, activate.
func (s *Server) handleAdTree(prefix, typed string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimSuffix(r.URL.Path, ".json")

		if strings.Contains(path, "/search/") {
			writeJSON(w, http.StatusOK, map[string]any{
				"result":      s.SearchResults,
				"resultCount": len(s.SearchResults),
			})
			return
		}

		switch {
		case strings.HasSuffix(path, "/close"):
			s.transition(w, strings.TrimSuffix(path, "/close"), "st_removed", http.StatusOK)
		case strings.HasSuffix(path, "/refresh"):
			status := s.RefreshStatus
			if status == 0 {
				status = http.StatusOK
			}
			if status == http.StatusNotModified {
				w.WriteHeader(status)
				return
			}
			s.transition(w, strings.TrimSuffix(path, "/refresh"), "st_pending", status)
		case strings.HasSuffix(path, "/activate"):
			s.transition(w, strings.TrimSuffix(path, "/activate"), "st_pending", http.StatusOK)
		case r.Method == http.MethodPut:
			s.handleEdit(w, r, path, typed)
		default:
			s.handleDetails(w, path, typed)
		}
	}
}

func (s *Server) transition(w http.ResponseWriter, path, state string, status int) {
	ad := s.findByPath(path)
	if ad == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no such ad"})
		return
	}
	s.mu.Lock()
	ad.State = state
	s.mu.Unlock()
	writeJSON(w, status, map[string]any{"success": true, "status": state})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request, path, typed string) {
	ad := s.findByPath(path)
	if ad == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no such ad"})
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	fields, _ := body[typed].(map[string]any)
	if fields == nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "missing " + typed})
		return
	}
	attrs, _ := fields["ad_listing_attributes"].(map[string]any)
	if attrs == nil || attrs["id"] == nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "missing ad_listing_attributes.id"})
		return
	}
	s.mu.Lock()
	for k, v := range fields {
		if k != "ad_listing_attributes" {
			ad.Fields[k] = v
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDetails(w http.ResponseWriter, path, typed string) {
	ad := s.findByPath(path)
	if ad == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no such ad"})
		return
	}
	s.mu.Lock()
	fields := map[string]any{}
	for k, v := range ad.Fields {
		fields[k] = v
	}
	if ad.FeaturedTill != "" {
		fields["featured_till"] = ad.FeaturedTill
	}
	out := map[string]any{
		"ad_listing": map[string]any{"ad_id": ad.ID, "id": ad.ListingID, "slug": ad.Slug, "status": ad.State},
		typed:        fields,
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) findByPath(path string) *Ad {
	s.mu.Lock()
	defer s.mu.Unlock()
	// trailing digit group is either an ad id, a listing id, or a slug tail
	tail := path[strings.LastIndexByte(path, '-')+1:]
	if i := strings.LastIndexByte(path, '/'); i >= 0 && strings.IndexByte(path[i+1:], '-') < 0 {
		tail = path[i+1:]
	}
	n, err := strconv.Atoi(tail)
	if err != nil {
		return nil
	}
	if ad, ok := s.ads[n]; ok {
		return ad
	}
	for _, ad := range s.ads {
		if ad.ListingID == n {
			return ad
		}
	}
	return nil
}

func (s *Server) handleMyAds(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	s.mu.Lock()
	var result []any
	for _, ad := range s.ads {
		if ad.State == status {
			result = append(result, map[string]any{"ad_id": ad.ID, "slug": ad.Slug})
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	products := []any{}
	for i, weeks := range []int{1, 2, 4, 6, 8} {
		products = append(products, map[string]any{
			"id":    10 + i,
			"name":  fmt.Sprintf("Feature Ad %d Weeks", weeks),
			"weeks": weeks,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data := map[string]any{}
	for k, v := range s.Credits {
		data[k] = v
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	productID := asInt(body["product_id"])
	weeks := map[int]int{10: 1, 11: 2, 12: 4, 13: 6, 14: 8}[productID]

	s.mu.Lock()
	id := fmt.Sprintf("pay-%d", len(s.payments)+1)
	s.payments[id] = &payment{
		pollsLeft: 2,
		weeks:     weeks,
		sID:       asInt(body["s_id"]),
		sType:     asString(body["s_type"]),
		status:    "pending",
	}
	s.mu.Unlock()

	// the id rides deep in the ack envelope on purpose
	writeJSON(w, http.StatusOK, map[string]any{
		"ack": map[string]any{"data": map[string]any{"payment_id": id}},
	})
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	id := asString(body["payment_id"])
	s.mu.Lock()
	p, ok := s.payments[id]
	if ok {
		p.status = "processing"
	}
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown payment"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "processing"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("payment_id")
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown payment"})
		return
	}
	if p.status != "paid" {
		if p.pollsLeft > 0 {
			p.pollsLeft--
			writeJSON(w, http.StatusOK, map[string]any{"status": "processing"})
			return
		}
		p.status = "paid"
		if p.sType == "ad_listing" {
			for _, ad := range s.ads {
				if ad.ListingID == p.sID {
					ad.FeaturedTill = time.Now().AddDate(0, 0, p.weeks*7).Format("2006-01-02")
				}
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "paid"})
}

func (s *Server) handleLeadCreate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (s *Server) handleSifmSlots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	// only the day after tomorrow has an assessor free
	dayAfter := time.Now().AddDate(0, 0, 2).Format("2006-01-02")
	if date != dayAfter {
		writeJSON(w, http.StatusOK, map[string]any{"slots": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"slots": []any{map[string]any{"id": 5, "assessor_id": 42, "start_time": "11:00"}},
	})
}

func (s *Server) handleCarsureSlots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"slots": []any{
			map[string]any{"id": 1, "date": time.Now().AddDate(0, 0, 1).Format("2006-01-02"), "start_time": "09:00", "available": true},
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	default:
		return 0
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
