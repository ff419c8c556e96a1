// Package queryast declares the AST shapes the execution core accepts as
// input (spec §6.3) and the Response tree it returns (spec §6.4). Nothing
// here parses BlueQL; these are hand-declared Go structs matching the
// shapes the (out of scope) query-language parser is expected to produce.
package queryast

import "github.com/skyenginedb/skyengine/pkg/types"

// Entity addresses a model by (space, name).
type Entity struct {
	Space string
	Name  string
}

// CreateSpace is the CREATE SPACE statement.
type CreateSpace struct {
	Name          string
	Props         map[string]types.Datacell
	IfNotExists   bool
}

// AlterSpace is the ALTER SPACE statement.
type AlterSpace struct {
	Name         string
	UpdatedProps map[string]types.Datacell
}

// DropSpace is the DROP SPACE statement.
type DropSpace struct {
	Name     string
	Force    bool
	IfExists bool
}

// FieldDeclaration is one column declaration inside CreateModel.
type FieldDeclaration struct {
	Name     string
	Layers   []types.Layer
	Nullable bool
	IsPK     bool
}

// CreateModel is the CREATE MODEL statement.
type CreateModel struct {
	Entity Entity
	Fields []FieldDeclaration
	Props  map[string]types.Datacell
}

// AlterModelKind discriminates the three ALTER MODEL forms.
type AlterModelKind int

const (
	AlterAdd AlterModelKind = iota
	AlterRemove
	AlterUpdate
)

// AlterModel is the ALTER MODEL statement; exactly one of Add/RemoveNames/
// Update is populated depending on Kind.
type AlterModel struct {
	Entity      Entity
	Kind        AlterModelKind
	Add         []FieldDeclaration
	RemoveNames []string
	Update      []FieldDeclaration
}

// DropModel is the DROP MODEL statement.
type DropModel struct {
	Entity   Entity
	Force    bool
	IfExists bool
}

// Insert is the INSERT statement; Row maps field name to literal value,
// including the primary key field.
type Insert struct {
	Entity Entity
	Row    map[string]types.Datacell
}

// WhereClause identifies a single row by its primary key value. The spec
// scopes out secondary indexes, so WHERE only ever resolves a PK (§1).
type WhereClause struct {
	PK types.Datacell
}

// Operator is an update-assignment operator (spec §4.8).
type Operator int

const (
	OpAssign Operator = iota
	OpAddAssign
	OpSubAssign
	OpMulAssign
	OpDivAssign
)

// Assignment is one `(field, operator, literal)` tuple inside UPDATE.
type Assignment struct {
	Field    string
	Operator Operator
	Literal  types.Datacell
}

// Update is the UPDATE statement.
type Update struct {
	Entity      Entity
	Where       WhereClause
	Assignments []Assignment
}

// Delete is the DELETE statement.
type Delete struct {
	Entity Entity
	Where  WhereClause
}

// Select is the SELECT statement. An empty Projection selects all fields.
type Select struct {
	Entity     Entity
	Where      WhereClause
	Projection []string
}

// ResponseKind discriminates the Response variant tree (spec §6.4).
type ResponseKind int

const (
	RespEmpty ResponseKind = iota
	RespRow
	RespRows
	RespError
)

// Response is the execution core's output: at least Empty, Row, Rows, and
// Error, per spec §6.4.
type Response struct {
	Kind  ResponseKind
	Row   []types.Datacell
	Rows  [][]types.Datacell
	Error error
}

// EmptyResponse builds the Empty variant.
func EmptyResponse() Response { return Response{Kind: RespEmpty} }

// RowResponse builds the Row variant.
func RowResponse(row []types.Datacell) Response {
	return Response{Kind: RespRow, Row: row}
}

// RowsResponse builds the Rows variant.
func RowsResponse(rows [][]types.Datacell) Response {
	return Response{Kind: RespRows, Rows: rows}
}

// ErrorResponse builds the Error variant.
func ErrorResponse(err error) Response {
	return Response{Kind: RespError, Error: err}
}
