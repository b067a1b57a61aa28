package schema

// Size is a pixel extent.
type Size struct {
	Width  int
	Height int
}

// CellSize is the pixel extent of one character cell.
type CellSize struct {
	Width  int
	Height int
}

// Valid reports whether both dimensions are positive.
func (c CellSize) Valid() bool {
	return c.Width > 0 && c.Height > 0
}

// Geometry is a pixel size plus the rows and columns that fit in it.
type Geometry struct {
	Width  int
	Height int
	Cols   int
	Rows   int
}

// NewGeometry derives rows and columns from a pixel size by floor division.
// Rows and columns never drop below one.
func NewGeometry(size Size, cell CellSize) Geometry {
	if !cell.Valid() {
		cell = DefaultCellSize
	}
	cols := size.Width / cell.Width
	rows := size.Height / cell.Height
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return Geometry{Width: size.Width, Height: size.Height, Cols: cols, Rows: rows}
}

// Size returns the pixel extent of the geometry.
func (g Geometry) Size() Size {
	return Size{Width: g.Width, Height: g.Height}
}
