package geo

import (
	"errors"
	"math"
	"testing"

	"presence/internal/faults"
)

func TestDistanceSymmetry(t *testing.T) {
	pairs := []struct{ a, b Point }{
		{Point{19.0760, 72.8777}, Point{19.2183, 72.9781}},
		{Point{40.7128, -74.0060}, Point{40.7484, -73.9857}},
		{Point{-33.8688, 151.2093}, Point{51.5074, -0.1278}},
		{Point{0, 179.9}, Point{0, -179.9}},
	}
	for _, p := range pairs {
		ab, err := DistanceMeters(p.a, p.b)
		if err != nil {
			t.Fatalf("distance(a,b): %v", err)
		}
		ba, err := DistanceMeters(p.b, p.a)
		if err != nil {
			t.Fatalf("distance(b,a): %v", err)
		}
		if ab != ba {
			t.Errorf("asymmetric: %v vs %v for %+v", ab, ba, p)
		}
		if ab < 0 {
			t.Errorf("negative distance %v for %+v", ab, p)
		}
	}
}

func TestDistanceIdentityIsZero(t *testing.T) {
	points := []Point{{0, 0}, {90, 0}, {-90, 180}, {19.0760, 72.8777}}
	for _, p := range points {
		d, err := DistanceMeters(p, p)
		if err != nil {
			t.Fatalf("distance(p,p): %v", err)
		}
		if d != 0 {
			t.Errorf("distance(%+v, same) = %v, want 0", p, d)
		}
	}
}

func TestDistanceKnownValues(t *testing.T) {
	// One degree of latitude along a meridian is R * pi/180.
	d, err := DistanceMeters(Point{10, 20}, Point{11, 20})
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	want := earthRadiusMeters * math.Pi / 180
	if math.Abs(d-want) > 0.5 {
		t.Errorf("1 degree latitude = %.2f m, want %.2f", d, want)
	}

	// City Hall to Empire State Building, roughly 4.3 km.
	d, err = DistanceMeters(Point{40.7128, -74.0060}, Point{40.7484, -73.9857})
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if d < 4200 || d > 4400 {
		t.Errorf("NYC reference distance = %.1f m, want ~4300", d)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	bad := []Point{{91, 0}, {-90.01, 0}, {0, 181}, {0, -180.5}}
	for _, p := range bad {
		if _, err := DistanceMeters(p, Point{}); !errors.Is(err, &faults.Error{Kind: faults.InvalidCoordinate}) {
			t.Errorf("expected InvalidCoordinate for %+v, got %v", p, err)
		}
	}
	if err := (Point{90, 180}).Validate(); err != nil {
		t.Errorf("boundary coordinate rejected: %v", err)
	}
}

func TestFenceCenterAlwaysContained(t *testing.T) {
	for _, radius := range []float64{0, 1, 100, 5000} {
		f := Fence{Center: Point{19.0760, 72.8777}, RadiusMeters: radius}
		in, d, err := f.Contains(f.Center)
		if err != nil {
			t.Fatalf("contains: %v", err)
		}
		if !in {
			t.Errorf("center not contained at radius %v", radius)
		}
		if d != 0 {
			t.Errorf("distance to center = %v, want 0", d)
		}
	}
}

func TestFenceContainment(t *testing.T) {
	// 100 m fence; a point ~550 m north must be outside, ~50 m inside.
	f := Fence{Center: Point{40.7128, -74.0060}, RadiusMeters: 100}

	in, d, err := f.Contains(Point{40.7128 + 0.005, -74.0060})
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if in {
		t.Errorf("point %.0f m away reported inside 100 m fence", d)
	}

	in, d, err = f.Contains(Point{40.7128 + 0.0004, -74.0060})
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if !in {
		t.Errorf("point %.0f m away reported outside 100 m fence", d)
	}
}
