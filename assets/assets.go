// Package assets embeds the built frontend. Run cmd/minify to regenerate
// index.html from the template and raw css/js.
package assets

import _ "embed"

//go:embed index.html
var Index []byte

//go:embed favicon.png
var Favicon []byte

//go:embed transparent.png
var TransparentTile []byte
