package geom

import (
	"math"
	"testing"
)

func TestBoundingSphere(t *testing.T) {
	const eps = 0.0001

	center, radius := BoundingSphere(nil)
	if center.Len() != 0 || radius != 0 {
		t.Error("empty: ", center, radius)
	}

	center, radius = BoundingSphere([]*Vector3{NewVector3(1, 2, 3)})
	if center.Sub(NewVector3(1, 2, 3)).Len() > eps || radius != 0 {
		t.Error("single point: ", center, radius)
	}

	points := []*Vector3{
		NewVector3(-1, 0, 0),
		NewVector3(1, 0, 0),
		NewVector3(0, 1, 0),
		NewVector3(0, -1, 0),
		NewVector3(0, 0, 0.5),
	}
	center, radius = BoundingSphere(points)
	for i, p := range points {
		if p.Sub(center).Len() > radius+eps {
			t.Error("point outside sphere: ", i, p, center, radius)
		}
	}

	points = points[:0]
	for i := 0; i < 100; i++ {
		a := float64(i) * 0.7
		points = append(points, NewVector3(
			float32(math.Cos(a))*3+10,
			float32(math.Sin(a))*3-5,
			float32(i%7)))
	}
	center, radius = BoundingSphere(points)
	for i, p := range points {
		if p.Sub(center).Len() > radius+eps {
			t.Error("point outside sphere: ", i, p, center, radius)
		}
	}
}
