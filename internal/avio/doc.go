// Package avio is the demux/decode adapter. It is the
// only package in this module that touches libav*: opening a source,
// selecting a track, and producing packets and decoded frames one cursor
// at a time. Everything above this package (indexing, pooling, caching,
// seeking) talks to a Cursor and never to libav directly, so a different
// demux/decode backend could be substituted here without touching the
// rest of the module.
package avio
