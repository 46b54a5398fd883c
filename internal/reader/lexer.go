// Package reader parses the textual form of functions produced by the IR
// printer. It powers the CLI and file-driven tests.
package reader

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var irLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments run to end of line.
		{"Comment", `;[^\n]*`, nil},

		// Keywords, opcodes and entity references (order matters).
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},

		// The return type arrow, before Number so "->" never lexes as a
		// sign.
		{"Arrow", `->`, nil},

		// Integer literals, including the signed offsets the printer
		// attaches to memory operands.
		{"Number", `[+-]?(0x[0-9a-fA-F]+|[0-9]+)`, nil},

		{"Percent", `%`, nil},

		{"Punct", `[(){}:,=.\[\]]`, nil},

		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
