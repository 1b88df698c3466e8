package rest

import "io"

// File is a binary attachment sent alongside a request's JSON payload as
// multipart content.
type File struct {
	Name        string
	ContentType string
	Reader      io.Reader
}
