/*
Package log provides structured logging for autoupdater using zerolog.

It wraps zerolog to give every component a consistently shaped logger:
JSON or console output, configurable level, and child loggers scoped to
a component, a package name, or an in-flight update id.
*/
package log
