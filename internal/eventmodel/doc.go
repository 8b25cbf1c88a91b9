// Package eventmodel describes watched entities and the capture tables that
// record their changes.
//
// An EventModelInfo is built once at startup from declarations (usually the
// `entities` section of the config file) and is immutable afterwards. Every
// other package reads capture rows, generates trigger SQL, or resolves index
// mappings through it.
package eventmodel
