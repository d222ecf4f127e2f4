package object

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const sniffLen = 512

// Sniff detects r's content type from its first bytes and returns a reader
// that still yields the whole stream.
func Sniff(r io.Reader) (string, io.Reader, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", nil, fmt.Errorf("sniff content type: %w", err)
	}
	return http.DetectContentType(head), br, nil
}

// SaveSniffed is the shared Save path: it names the object under the owner's
// namespace, detects its type and hands both to save.
func SaveSniffed(ownerID, fileName string, r io.Reader, save func(key, contentType string, body io.Reader) (int64, error)) (Object, error) {
	key, err := NewKey(ownerID, fileName)
	if err != nil {
		return Object{}, err
	}
	mimeType, body, err := Sniff(r)
	if err != nil {
		return Object{}, err
	}
	size, err := save(key, mimeType, body)
	if err != nil {
		return Object{}, err
	}
	return Object{Key: key, Size: size, MimeType: mimeType}, nil
}
