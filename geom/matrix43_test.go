package geom

import (
	"math"
	"testing"
)

func TestMatrix4x3(t *testing.T) {
	const eps = 0.000001

	pos := NewVector3(4, -5, 6)
	rot := NewEuler(20*math.Pi/180, -40*math.Pi/180, 5*math.Pi/180, RotationOrderZXY).ToQuaternion()
	scale := NewVector3(2, 0.5, 3)

	m := NewMatrix4x3FromMatrix4(NewTRSMatrix4(pos, rot, scale))
	pos1, rot1, scale1 := m.Decompose()

	if pos.Sub(pos1).Len() > eps {
		t.Error("pos: ", pos, pos1)
	}
	if rot.Sub(rot1).Len() > eps {
		t.Error("rot: ", rot, rot1)
	}
	if scale.Sub(scale1).Len() > eps {
		t.Error("scale: ", scale, scale1)
	}

	if *NewMatrix4x3().ToMatrix4() != *NewMatrix4() {
		t.Error("identity")
	}
}

func TestToQuaternionStability(t *testing.T) {
	// rotations near 180 degrees hit the non-trace branches
	const eps = 0.0001
	for i, q := range []*Quaternion{
		NewQuaternion(1, 0, 0, 0),
		NewQuaternion(0, 1, 0, 0),
		NewQuaternion(0, 0, 1, 0),
		NewEuler(math.Pi*0.999, 0, 0, RotationOrderXYZ).ToQuaternion(),
		NewEuler(0, math.Pi*0.999, 0, RotationOrderXYZ).ToQuaternion(),
		NewEuler(0.1, 0.2, math.Pi*0.999, RotationOrderXYZ).ToQuaternion(),
	} {
		q1 := NewRotationMatrix4FromQuaternion(q).ToQuaternion()
		// double cover: q and -q encode the same rotation
		if q.Sub(q1).Len() > eps && q.Add(q1).Len() > eps {
			t.Error("quaternion: ", i, q, q1)
		}
		if Abs(q1.Len()-1) > eps {
			t.Error("not normalized: ", i, q1)
		}
	}
}

func TestDecomposeDegenerateScale(t *testing.T) {
	m := NewScaleMatrix4(0, 2, 3)
	_, rot, scale := m.Decompose()
	if scale.X != 0 || Abs(scale.Y-2) > 0.000001 || Abs(scale.Z-3) > 0.000001 {
		t.Error("scale: ", scale)
	}
	for _, v := range []Element{rot.X, rot.Y, rot.Z, rot.W} {
		if math.IsNaN(float64(v)) {
			t.Error("rot has NaN: ", rot)
		}
	}
}
