package geom

// BoundingSphere computes an approximate minimal bounding sphere with
// Ritter's algorithm: seed with the most separated axis-extreme pair,
// then grow the sphere for every point left outside. O(n) and
// deterministic, not globally optimal.
func BoundingSphere(points []*Vector3) (*Vector3, Element) {
	if len(points) == 0 {
		return &Vector3{}, 0
	}
	if len(points) == 1 {
		c := *points[0]
		return &c, 0
	}

	minp := [3]*Vector3{points[0], points[0], points[0]}
	maxp := [3]*Vector3{points[0], points[0], points[0]}
	for _, p := range points {
		if p.X < minp[0].X {
			minp[0] = p
		}
		if p.Y < minp[1].Y {
			minp[1] = p
		}
		if p.Z < minp[2].Z {
			minp[2] = p
		}
		if p.X > maxp[0].X {
			maxp[0] = p
		}
		if p.Y > maxp[1].Y {
			maxp[1] = p
		}
		if p.Z > maxp[2].Z {
			maxp[2] = p
		}
	}

	var a, b *Vector3 = minp[0], maxp[0]
	for i := 1; i < 3; i++ {
		if maxp[i].Sub(minp[i]).LenSqr() > b.Sub(a).LenSqr() {
			a, b = minp[i], maxp[i]
		}
	}

	center := a.Add(b).Scale(0.5)
	radius := b.Sub(a).Len() / 2

	for _, p := range points {
		d := p.Sub(center).Len()
		if d > radius {
			newRadius := (radius + d) / 2
			center = center.Add(p.Sub(center).Scale((newRadius - radius) / d))
			radius = newRadius
		}
	}
	return center, radius
}
