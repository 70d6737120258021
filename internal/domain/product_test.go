package domain

import "testing"

func TestPayload_AliasFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		get     func(Payload) string
		want    string
	}{
		{"title primary", Payload{"title": "Hoodie", "name": "Old"}, Payload.Title, "Hoodie"},
		{"title fallback to name", Payload{"name": "Hoodie"}, Payload.Title, "Hoodie"},
		{"description fallback", Payload{"short_description": "warm"}, Payload.Description, "warm"},
		{"tags fallback to auto_tags", Payload{"auto_tags": "cozy, winter"}, Payload.Tags, "cozy, winter"},
		{"image fallback to main_image", Payload{"main_image": "x.jpg"}, Payload.ImageURL, "x.jpg"},
		{"empty primary skipped", Payload{"title": "", "name": "N"}, Payload.Title, "N"},
		{"missing everything", Payload{}, Payload.Title, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.get(tt.payload); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPayload_Price(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		want    float64
	}{
		{"numeric preferred", Payload{"price_numeric": "999.5", "price": "1"}, 999.5},
		{"plain price", Payload{"price": "1299"}, 1299},
		{"thousands separator", Payload{"price": "1,299.00"}, 1299},
		{"spaces stripped", Payload{"price": "1 299"}, 1299},
		{"garbage", Payload{"price": "call us"}, 0},
		{"absent", Payload{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.payload.Price(); got != tt.want {
				t.Errorf("Price() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPayload_Counters(t *testing.T) {
	p := Payload{"view_count": "120", "vote_count": "7.0"}
	if p.Views() != 120 {
		t.Errorf("Views() = %d, want 120", p.Views())
	}
	if p.Votes() != 7 {
		t.Errorf("Votes() = %d, want 7", p.Votes())
	}
	if (Payload{}).Views() != 0 {
		t.Error("missing counter should be zero")
	}
}

func TestSearchRequest_Validate(t *testing.T) {
	neg := -1.0
	tests := []struct {
		name    string
		req     SearchRequest
		wantErr bool
	}{
		{"valid", SearchRequest{Query: "hoodies", Limit: 10}, false},
		{"empty query", SearchRequest{Limit: 10}, true},
		{"limit too small", SearchRequest{Query: "q", Limit: 0}, true},
		{"limit too big", SearchRequest{Query: "q", Limit: 51}, true},
		{"limit at max", SearchRequest{Query: "q", Limit: 50}, false},
		{"negative price min", SearchRequest{Query: "q", Limit: 5, PriceMin: &neg}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFallbackExpansion(t *testing.T) {
	e := FallbackExpansion("red sneakers")
	if e.SemanticExpansion != "red sneakers" {
		t.Errorf("SemanticExpansion = %q, want raw query", e.SemanticExpansion)
	}
	if len(e.Categories) != 1 || e.Categories[0] != "red sneakers" {
		t.Errorf("Categories = %v, want [red sneakers]", e.Categories)
	}
}
