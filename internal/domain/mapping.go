package domain

// FieldType is a backend-neutral field type.
type FieldType string

const (
	TypeText    FieldType = "text"
	TypeDate    FieldType = "date"
	TypeFloat   FieldType = "float"
	TypeInteger FieldType = "integer"
)

// FieldMapping declares the type of one indexed field.
type FieldMapping struct {
	Name string
	Type FieldType
}

// Mapping is an ordered list of field declarations.
type Mapping []FieldMapping

// Type returns the declared type of a field and whether it is declared.
func (m Mapping) Type(name string) (FieldType, bool) {
	for _, f := range m {
		if f.Name == name {
			return f.Type, true
		}
	}
	return "", false
}

// IndexMapping is the fixed mapping every backend creates the index with.
func IndexMapping() Mapping {
	return Mapping{
		{Name: FieldTitle, Type: TypeText},
		{Name: FieldOverview, Type: TypeText},
		{Name: FieldReleaseDate, Type: TypeDate},
		{Name: FieldPopularity, Type: TypeFloat},
		{Name: FieldVoteAverage, Type: TypeFloat},
		{Name: FieldVoteCount, Type: TypeInteger},
	}
}
