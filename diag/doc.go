// Package diag decodes the diagnostics a Graphviz engine emits while a
// graph is parsed, laid out and rendered.
//
// # Overview
//
// The engine reports problems on two channels. The first is a stream of
// tokens in which the sentinels "Error" and "Warning", each followed by
// ": ", switch the level applied to the tokens that come after them. The
// second is plain text written to stderr, one message per line, in the
// form "Error: message" or "Warning: message".
//
// [Buffer] collects both channels for one call, and [Parse] turns them
// into [Message] values, token messages first:
//
//	var buf diag.Buffer
//	buf.AppendToken("Error")
//	buf.AppendToken(": ")
//	buf.AppendToken("syntax error in line 1 near 'invalid'\n")
//	msgs := diag.Parse(buf.Tokens(), buf.Lines())
//	// [{Message: "syntax error in line 1 near 'invalid'", Level: "error"}]
package diag
