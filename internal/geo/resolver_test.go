package geo

import (
	"math"
	"sync"
	"testing"

	"citypulse/internal/types"
)

func TestDistanceKM(t *testing.T) {
	tests := []struct {
		name string
		a, b types.Coordinate
		want float64
		tol  float64
	}{
		{
			name: "same point",
			a:    types.Coordinate{Lat: 37.5735, Lon: 126.9790},
			b:    types.Coordinate{Lat: 37.5735, Lon: 126.9790},
			want: 0,
			tol:  0.001,
		},
		{
			name: "jongno to gangnam",
			a:    types.Coordinate{Lat: 37.5735, Lon: 126.9790},
			b:    types.Coordinate{Lat: 37.5172, Lon: 127.0473},
			want: 8.6,
			tol:  0.5,
		},
		{
			name: "seoul to busan",
			a:    types.Coordinate{Lat: 37.5665, Lon: 126.9780},
			b:    types.Coordinate{Lat: 35.1796, Lon: 129.0756},
			want: 325,
			tol:  10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKM(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("DistanceKM() = %.3f, want %.1f (+/- %.1f)", got, tt.want, tt.tol)
			}
		})
	}
}

func TestDistanceKM_Symmetric(t *testing.T) {
	a := types.Coordinate{Lat: 37.5735, Lon: 126.9790}
	b := types.Coordinate{Lat: 37.5172, Lon: 127.0473}
	if DistanceKM(a, b) != DistanceKM(b, a) {
		t.Error("distance is not symmetric")
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver()

	t.Run("exact centroid resolves", func(t *testing.T) {
		d, ok := r.Resolve(types.Coordinate{Lat: 37.5735, Lon: 126.9790})
		if !ok {
			t.Fatal("expected coordinate to resolve")
		}
		if d.Code != "11110" || d.Name != "Jongno-gu" {
			t.Errorf("got %s/%s, want 11110/Jongno-gu", d.Code, d.Name)
		}
	})

	t.Run("nearby point resolves to nearest district", func(t *testing.T) {
		// Slightly south-east of the Gangnam centroid.
		d, ok := r.Resolve(types.Coordinate{Lat: 37.5000, Lon: 127.0500})
		if !ok {
			t.Fatal("expected coordinate to resolve")
		}
		if d.Code != "11680" {
			t.Errorf("got district %s, want 11680 (Gangnam-gu)", d.Code)
		}
	})

	t.Run("out of coverage returns not found", func(t *testing.T) {
		if _, ok := r.Resolve(types.Coordinate{Lat: 35.1796, Lon: 129.0756}); ok {
			t.Error("expected out-of-coverage coordinate to not resolve")
		}
	})

	t.Run("invalid coordinate returns not found", func(t *testing.T) {
		if _, ok := r.Resolve(types.Coordinate{Lat: 95, Lon: 127}); ok {
			t.Error("expected invalid coordinate to not resolve")
		}
	})
}

func TestResolver_ConcurrentLookups(t *testing.T) {
	r := NewResolver()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Resolve(types.Coordinate{Lat: 37.55, Lon: 127.00})
			}
		}()
	}
	wg.Wait()
}
