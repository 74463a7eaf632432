package schema

type SchemaColumn struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

func Column(name string, typ FieldType) SchemaColumn {
	return SchemaColumn{Name: name, Type: typ}
}
