package geom

import (
	"math"
	"testing"
)

func TestDecomposeMatrix(t *testing.T) {
	const eps = 0.000001

	pos := NewVector3(1, 2, 3)
	rot := NewEuler(10*math.Pi/180, 20*math.Pi/180, 30*math.Pi/180, RotationOrderZXY).ToQuaternion()
	scale := NewVector3(1.5, 1.6, 1.7)

	mat := NewTRSMatrix4(pos, rot, scale)
	pos1, rot1, scale1 := mat.Decompose()

	if pos.Sub(pos1).Len() > eps {
		t.Error("pos: ", pos, pos1)
	}
	if rot.Sub(rot1).Len() > eps {
		t.Error("rot: ", rot, rot1)
	}
	if scale.Sub(scale1).Len() > eps {
		t.Error("scale: ", scale, scale1)
	}

	mat2 := NewRotationMatrix4FromQuaternion(rot)
	pos1, rot1, scale1 = mat2.Decompose()
	if rot.Sub(rot1).Len() > eps {
		t.Error("rot: ", rot, rot1)
	}
	if pos1.Len() > eps {
		t.Error("pos: ", pos1)
	}
	if scale1.Sub(NewVector3(1, 1, 1)).Len() > eps {
		t.Error("scale: ", scale1)
	}
}

func TestRotationMatrixConvention(t *testing.T) {
	const eps = 0.000001

	// 90 degrees around Z maps +X to +Y
	q := NewEuler(0, 0, math.Pi/2, RotationOrderXYZ).ToQuaternion()
	v := NewRotationMatrix4FromQuaternion(q).ApplyTo(NewVector3(1, 0, 0))
	if v.Sub(NewVector3(0, 1, 0)).Len() > eps {
		t.Error("matrix apply: ", v)
	}
	v = q.ApplyTo(NewVector3(1, 0, 0))
	if v.Sub(NewVector3(0, 1, 0)).Len() > eps {
		t.Error("quaternion apply: ", v)
	}

	// quaternion and euler produce the same matrix
	rot := NewEuler(10*math.Pi/180, 20*math.Pi/180, 30*math.Pi/180, RotationOrderXYZ)
	m1 := NewRotationMatrix4FromQuaternion(rot.ToQuaternion())
	m2 := NewEulerRotationMatrix4(rot.X, rot.Y, rot.Z, 0)
	for i := range m1 {
		if Abs(m1[i]-m2[i]) > eps {
			t.Fatal("matrix mismatch at ", i, ": ", *m1, *m2)
		}
	}

	e := NewEulerFromMatrix4(m1, RotationOrderXYZ)
	if Abs(e.X-rot.X) > eps || Abs(e.Y-rot.Y) > eps || Abs(e.Z-rot.Z) > eps {
		t.Error("euler: ", e)
	}
}
