package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ride-detector/internal/detect"
	"ride-detector/internal/route"
)

var ErrInvalidRoute = errors.New("invalid route file")

// RouteFile is the YAML layout of ROUTE_FILE. Coordinates are [lng, lat].
type RouteFile struct {
	Route      RouteSection       `yaml:"route"`
	Thresholds ThresholdOverrides `yaml:"thresholds"`
}

type RouteSection struct {
	ID       string       `yaml:"id" validate:"required"`
	Name     string       `yaml:"name"`
	EndLabel string       `yaml:"endLabel"`
	Polyline [][2]float64 `yaml:"polyline" validate:"min=2"`
	Stops    []StopEntry  `yaml:"stops" validate:"unique=ID,dive"`
}

type StopEntry struct {
	ID       string     `yaml:"id" validate:"required"`
	Name     string     `yaml:"name" validate:"required"`
	Location [2]float64 `yaml:"location"`
}

// ThresholdOverrides replaces individual defaults. Omitted keys keep the
// built-in value.
type ThresholdOverrides struct {
	RouteMatchRadius  *float64       `yaml:"routeMatchRadiusM" validate:"omitempty,gt=0"`
	StopSpeedKmh      *float64       `yaml:"stopSpeedKmh" validate:"omitempty,gte=0"`
	StopMinDwell      *time.Duration `yaml:"stopMinDwell" validate:"omitempty,gt=0"`
	StopMaxDwell      *time.Duration `yaml:"stopMaxDwell" validate:"omitempty,gt=0"`
	EnforceMaxDwell   *bool          `yaml:"enforceMaxDwell"`
	StopLookback      *time.Duration `yaml:"stopLookback" validate:"omitempty,gt=0"`
	StopMatchRadius   *float64       `yaml:"stopMatchRadiusM" validate:"omitempty,gt=0"`
	ClusterRadius     *float64       `yaml:"clusterRadiusM" validate:"omitempty,gt=0"`
	ClusterSpeedDelta *float64       `yaml:"clusterSpeedDeltaMps" validate:"omitempty,gt=0"`
	ReportSpeedKmh    *float64       `yaml:"reportSpeedKmh" validate:"omitempty,gte=0"`
	NextHaltBuffer    *float64       `yaml:"nextHaltBufferM" validate:"omitempty,gte=0"`
}

func (o ThresholdOverrides) apply(th detect.Thresholds) detect.Thresholds {
	setF := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setD := func(dst *time.Duration, v *time.Duration) {
		if v != nil {
			*dst = *v
		}
	}
	setF(&th.RouteMatchRadius, o.RouteMatchRadius)
	setF(&th.StopSpeedKmh, o.StopSpeedKmh)
	setD(&th.StopMinDwell, o.StopMinDwell)
	setD(&th.StopMaxDwell, o.StopMaxDwell)
	if o.EnforceMaxDwell != nil {
		th.EnforceMaxDwell = *o.EnforceMaxDwell
	}
	setD(&th.StopLookback, o.StopLookback)
	setF(&th.StopMatchRadius, o.StopMatchRadius)
	setF(&th.ClusterRadius, o.ClusterRadius)
	setF(&th.ClusterSpeedDelta, o.ClusterSpeedDelta)
	setF(&th.ReportSpeedKmh, o.ReportSpeedKmh)
	setF(&th.NextHaltBuffer, o.NextHaltBuffer)
	return th
}

// LoadRoute reads and validates a route file. An empty path yields the
// built-in Route 138 with default thresholds.
func LoadRoute(path string) (*route.Route, detect.Thresholds, error) {
	if path == "" {
		return route.Route138(), detect.DefaultThresholds(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, detect.Thresholds{}, err
	}
	return ParseRoute(data)
}

// ParseRoute decodes and validates route file contents.
func ParseRoute(data []byte) (*route.Route, detect.Thresholds, error) {
	var f RouteFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, detect.Thresholds{}, fmt.Errorf("%w: %v", ErrInvalidRoute, err)
	}
	v := validator.New()
	if err := v.Struct(f); err != nil {
		return nil, detect.Thresholds{}, fmt.Errorf("%w: %v", ErrInvalidRoute, err)
	}
	for i, c := range f.Route.Polyline {
		if err := checkLngLat(c); err != nil {
			return nil, detect.Thresholds{}, fmt.Errorf("%w: polyline[%d]: %v", ErrInvalidRoute, i, err)
		}
	}
	specs := make([]route.StopSpec, 0, len(f.Route.Stops))
	for _, s := range f.Route.Stops {
		if err := checkLngLat(s.Location); err != nil {
			return nil, detect.Thresholds{}, fmt.Errorf("%w: stop %s: %v", ErrInvalidRoute, s.ID, err)
		}
		specs = append(specs, route.StopSpec{ID: s.ID, Name: s.Name, Location: s.Location})
	}

	endLabel := f.Route.EndLabel
	if endLabel == "" && len(specs) > 0 {
		endLabel = specs[len(specs)-1].Name + " (End)"
	}
	rt, err := route.New(f.Route.ID, f.Route.Name, endLabel, f.Route.Polyline, specs)
	if err != nil {
		return nil, detect.Thresholds{}, fmt.Errorf("%w: %v", ErrInvalidRoute, err)
	}
	th := f.Thresholds.apply(detect.DefaultThresholds())
	if th.StopLookback < th.StopMinDwell {
		return nil, detect.Thresholds{}, fmt.Errorf("%w: stopLookback %s shorter than stopMinDwell %s", ErrInvalidRoute, th.StopLookback, th.StopMinDwell)
	}
	return rt, th, nil
}

func checkLngLat(c [2]float64) error {
	if c[0] < -180 || c[0] > 180 {
		return fmt.Errorf("longitude %v out of range", c[0])
	}
	if c[1] < -90 || c[1] > 90 {
		return fmt.Errorf("latitude %v out of range", c[1])
	}
	return nil
}
