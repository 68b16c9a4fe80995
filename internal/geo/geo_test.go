package geo

import (
	"errors"
	"math"
	"testing"
)

var watchPoint = Point{Lat: 48.853229, Lon: 2.225328}

// north returns p moved meters due north along its meridian.
func north(p Point, meters float64) Point {
	return Point{Lat: p.Lat + meters/EarthRadiusMeters*180/math.Pi, Lon: p.Lon}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Point
		want    float64
		epsilon float64
	}{
		{name: "same point", a: watchPoint, b: watchPoint, want: 0},
		{name: "850m north", a: watchPoint, b: north(watchPoint, 850), want: 850},
		{name: "3000m north", a: watchPoint, b: north(watchPoint, 3000), want: 3000},
		{name: "paris to london", a: Point{48.8566, 2.3522}, b: Point{51.5074, -0.1278}, want: 343500, epsilon: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.epsilon {
				t.Errorf("Distance() = %v, want %v (±%v)", got, tt.want, tt.epsilon)
			}
			if got != math.Round(got) {
				t.Errorf("Distance() = %v, not rounded to whole meters", got)
			}
		})
	}
}

func TestDistanceSymmetry(t *testing.T) {
	points := []Point{
		watchPoint,
		north(watchPoint, 1234),
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 0, Lon: 179.9},
		{Lat: 0, Lon: -179.9},
		{Lat: 89.9, Lon: 10},
	}
	for _, a := range points {
		if d := Distance(a, a); d != 0 {
			t.Errorf("Distance(%v, %v) = %v, want 0", a, a, d)
		}
		for _, b := range points {
			if Distance(a, b) != Distance(b, a) {
				t.Errorf("Distance not symmetric for %v and %v", a, b)
			}
		}
	}
}

func TestDistanceNaN(t *testing.T) {
	if d := Distance(Point{Lat: math.NaN(), Lon: 0}, watchPoint); !math.IsNaN(d) {
		t.Errorf("expected NaN, got %v", d)
	}
}

func TestPointValid(t *testing.T) {
	tests := []struct {
		p    Point
		want bool
	}{
		{watchPoint, true},
		{Point{90, 180}, true},
		{Point{90.1, 0}, false},
		{Point{0, -180.5}, false},
		{Point{math.NaN(), 0}, false},
		{Point{0, math.Inf(1)}, false},
	}
	for _, tt := range tests {
		if got := tt.p.Valid(); got != tt.want {
			t.Errorf("%v.Valid() = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestWithinRadius(t *testing.T) {
	if !WithinRadius(watchPoint, north(watchPoint, 3000), 3000) {
		t.Error("point on the boundary should be within radius")
	}
	if WithinRadius(watchPoint, north(watchPoint, 3001), 3000) {
		t.Error("point past the boundary should not be within radius")
	}
}

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		meters float64
		want   string
	}{
		{0, "0 m"},
		{500, "500 m"},
		{999, "999 m"},
		{1000, "1.0 km"},
		{1500, "1.5 km"},
		{2400, "2.4 km"},
	}
	for _, tt := range tests {
		if got := FormatDistance(tt.meters); got != tt.want {
			t.Errorf("FormatDistance(%v) = %q, want %q", tt.meters, got, tt.want)
		}
	}
}

func TestBoundAround(t *testing.T) {
	b := BoundAround(watchPoint, 3000)
	if !(b.Min.Lat() < watchPoint.Lat && b.Max.Lat() > watchPoint.Lat) {
		t.Errorf("bound %v does not contain watch point latitude", b)
	}
	if !(b.Min.Lon() < watchPoint.Lon && b.Max.Lon() > watchPoint.Lon) {
		t.Errorf("bound %v does not contain watch point longitude", b)
	}
	edge := north(watchPoint, 2999)
	if edge.Lat > b.Max.Lat() {
		t.Errorf("bound max lat %v excludes point at 2999m (%v)", b.Max.Lat(), edge.Lat)
	}
	past := north(watchPoint, 3100)
	if past.Lat < b.Max.Lat() {
		t.Errorf("bound max lat %v includes point at 3100m (%v)", b.Max.Lat(), past.Lat)
	}
}

func TestCircle(t *testing.T) {
	ring := Circle(watchPoint, 2000, 36)
	if len(ring) != 37 || ring[0] != ring[36] {
		t.Fatalf("ring has %d points, closed=%t", len(ring), ring[0] == ring[len(ring)-1])
	}
	for i, p := range ring {
		if d := Distance(watchPoint, p); math.Abs(d-2000) > 2 {
			t.Errorf("point %d at %vm, want 2000m", i, d)
		}
	}
	if got := len(Circle(watchPoint, 100, 1)); got != 4 {
		t.Errorf("degenerate segment count gave %d points", got)
	}
}

func TestClassify(t *testing.T) {
	zones := DefaultZones()
	tests := []struct {
		distance float64
		want     string
	}{
		{0, "zone1"},
		{850, "zone1"},
		{1000, "zone1"},
		{1001, "zone2"},
		{2000, "zone2"},
		{2999, "zone3"},
		{3000, "zone3"},
		{3001, Beyond},
	}
	for _, tt := range tests {
		if got := zones.Classify(tt.distance); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.distance, got, tt.want)
		}
	}
}

func TestClassifyMonotone(t *testing.T) {
	zones := DefaultZones()
	prev := 0.0
	for d := 0.0; d <= zones.Boundary(); d += 50 {
		r, ok := zones.Radius(zones.Classify(d))
		if !ok {
			t.Fatalf("distance %v inside boundary classified as %q", d, zones.Classify(d))
		}
		if r < prev {
			t.Fatalf("zone radius decreased at %v: %v < %v", d, r, prev)
		}
		prev = r
	}
}

func TestZonesValidate(t *testing.T) {
	tests := []struct {
		name    string
		zones   Zones
		wantErr bool
	}{
		{name: "defaults", zones: DefaultZones()},
		{name: "single", zones: Zones{{Name: "only", RadiusMeters: 500}}},
		{name: "empty", zones: Zones{}, wantErr: true},
		{name: "zero radius", zones: Zones{{Name: "a", RadiusMeters: 0}}, wantErr: true},
		{name: "unnamed", zones: Zones{{RadiusMeters: 10}}, wantErr: true},
		{name: "equal radii", zones: Zones{{Name: "a", RadiusMeters: 10}, {Name: "b", RadiusMeters: 10}}, wantErr: true},
		{name: "decreasing", zones: Zones{{Name: "a", RadiusMeters: 20}, {Name: "b", RadiusMeters: 10}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.zones.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidZones) {
				t.Errorf("error %v does not wrap ErrInvalidZones", err)
			}
		})
	}
}

func TestBoundary(t *testing.T) {
	if got := DefaultZones().Boundary(); got != 3000 {
		t.Errorf("Boundary() = %v, want 3000", got)
	}
	if got := (Zones{}).Boundary(); got != 0 {
		t.Errorf("empty Boundary() = %v, want 0", got)
	}
}
