package schema

import (
	"fmt"
	"slices"
	"strings"

	"gorm.io/datatypes"
)

type Datatype string

const (
	Varchar   Datatype = "VARCHAR"
	Integer   Datatype = "INTEGER"
	Date      Datatype = "DATE"
	Numeric   Datatype = "NUMERIC"
	Timestamp Datatype = "TIMESTAMP"
)

var supportedDatatypes = []Datatype{Varchar, Integer, Date, Numeric, Timestamp}

func ParseDatatype(value string) (Datatype, error) {
	dt := Datatype(strings.ToUpper(strings.TrimSpace(value)))
	if !slices.Contains(supportedDatatypes, dt) {
		return "", fmt.Errorf("%w: '%v'", ErrInvalidDatatype, value)
	}
	return dt, nil
}

func (d *Datatype) UnmarshalText(text []byte) error {
	dt, err := ParseDatatype(string(text))
	if err != nil {
		return err
	}
	*d = dt
	return nil
}

type IdType string

const (
	SerialId  IdType = "SERIAL"
	VarcharId IdType = "VARCHAR"
	IntegerId IdType = "INTEGER"
)

func ParseIdType(value string) (IdType, error) {
	switch t := IdType(strings.ToUpper(strings.TrimSpace(value))); t {
	case SerialId, VarcharId, IntegerId:
		return t, nil
	default:
		return "", fmt.Errorf("%w: '%v'", ErrInvalidIdType, value)
	}
}

func (t *IdType) UnmarshalText(text []byte) error {
	idType, err := ParseIdType(string(text))
	if err != nil {
		return err
	}
	*t = idType
	return nil
}

// YesNo is the catalog's boolean encoding. The empty value reads as No.
type YesNo string

const (
	Yes YesNo = "Yes"
	No  YesNo = "No"
)

func (v YesNo) Bool() bool {
	return v == Yes
}

func (v *YesNo) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "yes":
		*v = Yes
	case "no", "":
		*v = No
	default:
		return fmt.Errorf("%w: expected 'Yes' or 'No', got '%v'", ErrInvalidField, string(text))
	}
	return nil
}

type Field struct {
	Name              string         `json:"name" yaml:"name"`
	Datatype          Datatype       `json:"datatype" yaml:"datatype"`
	NotNull           YesNo          `json:"notNull,omitempty" yaml:"notNull,omitempty"`
	Unique            YesNo          `json:"unique,omitempty" yaml:"unique,omitempty"`
	Display           string         `json:"display,omitempty" yaml:"display,omitempty"`
	ForeignKey        string         `json:"foreignKey,omitempty" yaml:"foreignKey,omitempty"`
	ForeignKeyDisplay string         `json:"foreignKeyDisplay,omitempty" yaml:"foreignKeyDisplay,omitempty"`
	Validators        map[string]any `json:"validators,omitempty" yaml:"validators,omitempty"`
	GenerateUniqueId  bool           `json:"generateUniqueId,omitempty" yaml:"generateUniqueId,omitempty"`
	Choices           []string       `json:"choices,omitempty" yaml:"choices,omitempty"`
}

func (f Field) IsNotNull() bool {
	return f.NotNull.Bool()
}

func (f Field) IsUnique() bool {
	return f.Unique.Bool()
}

// FieldDiff carries the stored and requested definition of one field through
// an edit, so the DDL builder never reads shared state.
type FieldDiff struct {
	Old Field
	New Field
}

func (d FieldDiff) Renamed() bool {
	return d.Old.Name != d.New.Name
}

func (d FieldDiff) DatatypeChanged() bool {
	return d.Old.Datatype != d.New.Datatype
}

func (d FieldDiff) NotNullChanged() bool {
	return d.Old.IsNotNull() != d.New.IsNotNull()
}

func (d FieldDiff) UniqueChanged() bool {
	return d.Old.IsUnique() != d.New.IsUnique()
}

type Dataset struct {
	Name           string                      `gorm:"primaryKey;size:63" json:"name" yaml:"name"`
	IdType         IdType                      `gorm:"column:idtype;size:16;not null" json:"idType" yaml:"idType"`
	Fields         datatypes.JSONSlice[Field]  `gorm:"not null" json:"fields" yaml:"fields"`
	Org            string                      `gorm:"size:100" json:"org,omitempty" yaml:"org,omitempty"`
	Versioned      bool                        `gorm:"not null;default:false" json:"versioned" yaml:"versioned"`
	UniqueTogether datatypes.JSONSlice[string] `json:"uniqueTogether,omitempty" yaml:"uniqueTogether,omitempty"`
}

func (Dataset) TableName() string {
	return "datasets"
}

func (d *Dataset) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (d *Dataset) FieldNames() []string {
	names := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		names = append(names, f.Name)
	}
	return names
}

// SequenceName is the per-dataset sequence that feeds version_id.
func (d *Dataset) SequenceName() string {
	return d.Name + "_version_id_seq"
}

func (d *Dataset) ItemUri(itemId string) string {
	return fmt.Sprintf("/v1/datasets/%v/items/%v", d.Name, itemId)
}

func (d *Dataset) ItemsUri() string {
	return fmt.Sprintf("/v1/datasets/%v/items", d.Name)
}
