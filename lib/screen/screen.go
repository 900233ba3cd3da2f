// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package screen defines the fixed-size cell record that terminal
// frames are made of, and converts between cell grids, their byte
// encoding, and plain text.
//
// A frame handed to the recorder is a grid of [Cell] values encoded
// with [Grid.Encode]: Width*Height records of [CellSize] bytes,
// row-major. The diff codec compares frames one record at a time, so
// a single changed cell costs one record in a diff frame regardless of
// which of its fields changed.
package screen

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// CellSize is the encoded size of one Cell in bytes.
const CellSize = 16

// Attribute is a bit set of character rendition flags.
type Attribute uint16

const (
	Bold Attribute = 1 << iota
	Faint
	Italic
	Underline
	Blink
	Reverse
	Invisible
	Strikethrough
)

// Flags bits.
const (
	// FlagWrapped marks the last cell of a row that soft-wrapped into
	// the next row.
	FlagWrapped uint8 = 1 << 0
)

// Cell is one screen position. Colors are 0xRRGGBB with bit 24 set for
// true color, or a palette index with bit 24 clear. A wide character
// occupies two cells: the first has Width 2, the second Width 0 and
// Rune 0.
type Cell struct {
	Rune       int32
	Foreground uint32
	Background uint32
	Attributes Attribute
	Width      uint8
	Flags      uint8
}

// Blank is the cell an empty screen is filled with.
var Blank = Cell{Rune: ' ', Foreground: 7, Width: 1}

// Grid is a Width x Height screen of cells in row-major order.
type Grid struct {
	Width  int
	Height int
	Cells  []Cell
}

// NewGrid returns a grid of blank cells.
func NewGrid(width, height int) Grid {
	cells := make([]Cell, width*height)
	for i := range cells {
		cells[i] = Blank
	}
	return Grid{Width: width, Height: height, Cells: cells}
}

// At returns the cell at column x, row y.
func (grid Grid) At(x, y int) Cell {
	return grid.Cells[y*grid.Width+x]
}

// Set stores cell at column x, row y.
func (grid Grid) Set(x, y int, cell Cell) {
	grid.Cells[y*grid.Width+x] = cell
}

// Encode returns the byte encoding of the grid's cells.
func (grid Grid) Encode() []byte {
	return grid.AppendEncode(make([]byte, 0, len(grid.Cells)*CellSize))
}

// AppendEncode appends the byte encoding of the grid's cells to
// destination.
func (grid Grid) AppendEncode(destination []byte) []byte {
	for _, cell := range grid.Cells {
		destination = binary.LittleEndian.AppendUint32(destination, uint32(cell.Rune))
		destination = binary.LittleEndian.AppendUint32(destination, cell.Foreground)
		destination = binary.LittleEndian.AppendUint32(destination, cell.Background)
		destination = binary.LittleEndian.AppendUint16(destination, uint16(cell.Attributes))
		destination = append(destination, cell.Width, cell.Flags)
	}
	return destination
}

// Decode parses an encoded frame of the given dimensions.
func Decode(data []byte, width, height int) (Grid, error) {
	if width < 0 || height < 0 {
		return Grid{}, fmt.Errorf("screen: invalid dimensions %dx%d", width, height)
	}
	if len(data) != width*height*CellSize {
		return Grid{}, fmt.Errorf("screen: %d bytes for a %dx%d frame, want %d",
			len(data), width, height, width*height*CellSize)
	}

	grid := Grid{Width: width, Height: height, Cells: make([]Cell, width*height)}
	for i := range grid.Cells {
		record := data[i*CellSize : (i+1)*CellSize]
		grid.Cells[i] = Cell{
			Rune:       int32(binary.LittleEndian.Uint32(record[0:4])),
			Foreground: binary.LittleEndian.Uint32(record[4:8]),
			Background: binary.LittleEndian.Uint32(record[8:12]),
			Attributes: Attribute(binary.LittleEndian.Uint16(record[12:14])),
			Width:      record[14],
			Flags:      record[15],
		}
	}
	return grid, nil
}

// FromText lays plain text out on a width x height grid, one line per
// row. Escape sequences are stripped, tabs become a space, wide
// characters take two cells, and anything past the grid is clipped.
func FromText(text string, width, height int) Grid {
	grid := NewGrid(width, height)
	lines := strings.Split(strings.TrimSuffix(ansi.Strip(text), "\n"), "\n")

	for y, line := range lines {
		if y >= height {
			break
		}
		x := 0
		for _, character := range line {
			if character == '\t' || character == '\r' {
				character = ' '
			}
			cellWidth := ansi.StringWidth(string(character))
			if cellWidth == 0 {
				continue
			}
			if x+cellWidth > width {
				break
			}
			grid.Set(x, y, Cell{Rune: character, Foreground: Blank.Foreground, Width: uint8(cellWidth)})
			if cellWidth == 2 {
				grid.Set(x+1, y, Cell{Foreground: Blank.Foreground})
			}
			x += cellWidth
		}
	}
	return grid
}

// Lines renders each row as text with trailing blanks removed.
func (grid Grid) Lines() []string {
	lines := make([]string, grid.Height)
	var builder strings.Builder
	for y := range grid.Height {
		builder.Reset()
		for x := range grid.Width {
			cell := grid.At(x, y)
			switch {
			case cell.Width == 0:
			case cell.Rune == 0:
				builder.WriteByte(' ')
			default:
				builder.WriteRune(cell.Rune)
			}
		}
		lines[y] = strings.TrimRight(builder.String(), " ")
	}
	return lines
}
