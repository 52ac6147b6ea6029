package geom

// Matrix4x3 is an affine transform without the projective row. On disk
// it is stored as four rows of three elements, translation in the last
// row; in memory the layout matches the first three elements of each
// Matrix4 column.
type Matrix4x3 [12]Element

func NewMatrix4x3() *Matrix4x3 {
	return &Matrix4x3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
		0, 0, 0,
	}
}

func NewMatrix4x3FromMatrix4(m *Matrix4) *Matrix4x3 {
	return &Matrix4x3{
		m[0], m[1], m[2],
		m[4], m[5], m[6],
		m[8], m[9], m[10],
		m[12], m[13], m[14],
	}
}

func (m *Matrix4x3) ToMatrix4() *Matrix4 {
	return &Matrix4{
		m[0], m[1], m[2], 0,
		m[3], m[4], m[5], 0,
		m[6], m[7], m[8], 0,
		m[9], m[10], m[11], 1,
	}
}

func (m *Matrix4x3) Clone() *Matrix4x3 {
	r := *m
	return &r
}

// Decompose works like Matrix4.Decompose with the translation taken
// from the 4th row.
func (m *Matrix4x3) Decompose() (*Vector3, *Quaternion, *Vector3) {
	return m.ToMatrix4().Decompose()
}

func (m *Matrix4x3) ApplyTo(v *Vector3) *Vector3 {
	return m.ToMatrix4().ApplyTo(v)
}
