package utils

import (
	"errors"
	"io"
	"mime/multipart"
)

var ErrFileTooLarge = errors.New("uploaded file exceeds the size limit")

// ReadUploadedFile loads a multipart file into memory, refusing anything
// larger than limit bytes.
func ReadUploadedFile(file *multipart.FileHeader, limit int64) ([]byte, error) {
	if file.Size > limit {
		return nil, ErrFileTooLarge
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// UploadContentType is the part's declared media type, if any.
func UploadContentType(file *multipart.FileHeader) string {
	return file.Header.Get("Content-Type")
}
