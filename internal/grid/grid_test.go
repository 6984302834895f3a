package grid

import (
	"math"
	"testing"
)

func validDomain() CartesianDomain {
	return CartesianDomain{
		Rows: 100, Cols: 200, Resolution: 2,
		ExtentNorth: 200, ExtentEast: 400, ExtentSouth: 0, ExtentWest: 0,
	}
}

func TestCartesianDomainValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CartesianDomain)
		wantErr bool
	}{
		{name: "valid", mutate: func(*CartesianDomain) {}, wantErr: false},
		{name: "zero rows", mutate: func(d *CartesianDomain) { d.Rows = 0 }, wantErr: true},
		{name: "zero cols", mutate: func(d *CartesianDomain) { d.Cols = 0 }, wantErr: true},
		{name: "zero resolution", mutate: func(d *CartesianDomain) { d.Resolution = 0 }, wantErr: true},
		{name: "negative resolution", mutate: func(d *CartesianDomain) { d.Resolution = -2 }, wantErr: true},
		{name: "nan resolution", mutate: func(d *CartesianDomain) { d.Resolution = math.NaN() }, wantErr: true},
		{name: "inverted east-west", mutate: func(d *CartesianDomain) { d.ExtentEast = -1 }, wantErr: true},
		{name: "inverted north-south", mutate: func(d *CartesianDomain) { d.ExtentNorth = d.ExtentSouth }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDomain()
			tt.mutate(&d)
			if err := d.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCartesianDomainCellCount(t *testing.T) {
	d := validDomain()
	if got := d.CellCount(); got != 20000 {
		t.Errorf("CellCount() = %d, want 20000", got)
	}
}

func validTransform() Transform {
	return Transform{
		SourceResolution: 500,
		TargetResolution: 2,
		OffsetSouth:      0.25,
		OffsetWest:       1.5,
		Rows:             19,
		Cols:             37,
	}
}

func TestTransformValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Transform)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Transform) {}, wantErr: false},
		{name: "zero offsets valid", mutate: func(tr *Transform) { tr.OffsetSouth = 0; tr.OffsetWest = 0 }, wantErr: false},
		{name: "empty window", mutate: func(tr *Transform) { tr.Rows = 0 }, wantErr: true},
		{name: "negative offset", mutate: func(tr *Transform) { tr.OffsetWest = -1 }, wantErr: true},
		{name: "nan offset", mutate: func(tr *Transform) { tr.OffsetSouth = math.NaN() }, wantErr: true},
		{name: "infinite resolution", mutate: func(tr *Transform) { tr.SourceResolution = math.Inf(1) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := validTransform()
			tt.mutate(&tr)
			if err := tr.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransformCellCount(t *testing.T) {
	tr := validTransform()
	if got := tr.CellCount(); got != 19*37 {
		t.Errorf("CellCount() = %d, want %d", got, 19*37)
	}
}
