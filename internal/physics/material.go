package physics

// Material tags a body for contact-material lookup.
type Material struct {
	Name string
}

// NewMaterial creates a named material.
func NewMaterial(name string) *Material {
	return &Material{Name: name}
}

// ContactMaterial sets friction and restitution between two materials.
type ContactMaterial struct {
	A, B        *Material
	Friction    float64
	Restitution float64
}

type materialPair struct {
	a, b *Material
}
