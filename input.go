package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-mbox"
	"github.com/rotisserie/eris"
	"github.com/yeka/zip"
)

var (
	cfbfSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	zipSignature  = []byte{0x50, 0x4B}
)

// openInput validates filename and opens it. The caller closes the file.
func openInput(filename string) (*os.File, os.FileInfo, error) {
	// Check if path contains traversal attempts
	if strings.Contains(filename, "..") {
		return nil, nil, eris.New("path traversal detected")
	}

	absPath, err := filepath.Abs(filepath.Clean(filename))
	if err != nil {
		return nil, nil, eris.Wrap(err, "invalid file path")
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, nil, eris.Wrap(err, "failed to open file")
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, eris.Wrap(err, "failed to stat file")
	}
	if !stat.Mode().IsRegular() {
		_ = f.Close()
		return nil, nil, eris.New("not a regular file")
	}
	if stat.Size() > MaxFileSizeBytes {
		_ = f.Close()
		return nil, nil, eris.Errorf("file size %d exceeds maximum allowed size of %d bytes (50MB)",
			stat.Size(), MaxFileSizeBytes)
	}
	return f, stat, nil
}

// readMessageFile returns the RFC 5322 text of a .eml, .txt, .msg or .zip
// file. password opens encrypted archive entries.
func readMessageFile(filename, password string) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".eml", ".txt", ".msg", ".zip":
	default:
		return nil, eris.New("file must have .eml, .txt, .msg or .zip extension")
	}

	f, stat, err := openInput(filename)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	switch ext {
	case ".msg":
		magic := make([]byte, len(cfbfSignature))
		if _, err := io.ReadFull(f, magic); err != nil {
			return nil, eris.Wrap(err, "failed to read file header")
		}
		if !bytes.Equal(magic, cfbfSignature) && !bytes.HasPrefix(magic, zipSignature) {
			return nil, eris.New("file is not a valid .msg format (invalid file signature)")
		}
		return extractEmailFromMsg(f, stat.Size())
	case ".zip":
		return extractEmailFromZip(f, stat.Size(), password)
	default:
		data, err := io.ReadAll(io.LimitReader(f, MaxFileSizeBytes))
		if err != nil {
			return nil, eris.Wrap(err, "failed to read message file")
		}
		return data, nil
	}
}

// openZip opens an archive and rejects archives that look like zip bombs
func openZip(r io.ReaderAt, size int64) (*zip.Reader, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, eris.Wrap(err, "failed to open zip archive")
	}
	if len(zr.File) > MaxZipFiles {
		return nil, eris.Errorf("zip contains too many files: %d (max %d)", len(zr.File), MaxZipFiles)
	}
	for _, f := range zr.File {
		if f.UncompressedSize64 > 0 && f.CompressedSize64 > 0 {
			ratio := f.UncompressedSize64 / f.CompressedSize64
			if ratio > MaxCompressionRatio {
				return nil, eris.Errorf("suspicious compression ratio detected: %d:1 (max %d:1)",
					ratio, MaxCompressionRatio)
			}
		}
		if f.UncompressedSize64 > MaxUncompressedSize {
			return nil, eris.Errorf("uncompressed file too large: %d bytes (max %d)",
				f.UncompressedSize64, MaxUncompressedSize)
		}
	}
	return zr, nil
}

func readZipEntry(f *zip.File, password string) ([]byte, error) {
	if f.IsEncrypted() {
		if password == "" {
			return nil, eris.Errorf("%s is encrypted and no password was given", f.Name)
		}
		f.SetPassword(password)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", f.Name)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(io.LimitReader(rc, MaxUncompressedSize))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", f.Name)
	}
	return data, nil
}

// looksLikeMessage reports whether data starts with something a header
// block would
func looksLikeMessage(data []byte) bool {
	return bytes.Contains(data, []byte("From:")) &&
		(bytes.Contains(data, []byte("Received:")) || bytes.Contains(data, []byte("Subject:")))
}

// extractEmailFromZip returns the first message in a sample archive. An
// embedded .msg is unpacked as well.
func extractEmailFromZip(r io.ReaderAt, size int64, password string) ([]byte, error) {
	zr, err := openZip(r, size)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := strings.ToLower(f.Name)
		data, err := readZipEntry(f, password)
		if err != nil {
			lastErr = err
			continue
		}
		if strings.HasSuffix(name, ".msg") {
			if msg, err := extractEmailFromMsg(bytes.NewReader(data), int64(len(data))); err == nil {
				return msg, nil
			}
			continue
		}
		if looksLikeMessage(data) {
			return data, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, eris.New("no message found in zip archive")
}

// extractEmailFromMsg attempts to extract RFC822 email data from .msg file
func extractEmailFromMsg(r io.ReaderAt, size int64) ([]byte, error) {
	// Some .msg files are ZIP based and carry the message as an entry
	if zr, err := openZip(r, size); err == nil {
		for _, f := range zr.File {
			name := strings.ToLower(f.Name)
			if !strings.Contains(name, "message") && !strings.HasSuffix(name, ".eml") {
				continue
			}
			if data, err := readZipEntry(f, ""); err == nil && looksLikeMessage(data) {
				return data, nil
			}
		}
	}

	data := make([]byte, size)
	n, err := r.ReadAt(data, 0)
	if err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "failed to read MSG file")
	}
	data = data[:n]

	if block := extractRFC822FromBinary(data); block != nil {
		return block, nil
	}
	return nil, eris.New("could not find RFC822 email headers in MSG file")
}

// extractRFC822FromBinary searches the transport headers property of an
// OLE .msg file. Outlook stores them without a body, so a blank line is
// appended when the block has none.
func extractRFC822FromBinary(data []byte) []byte {
	for _, marker := range []string{"Received:", "Return-Path:"} {
		idx := bytes.Index(data, []byte(marker))
		if idx == -1 || idx >= 200000 {
			continue
		}
		block := headerBlock(data, idx)
		if bytes.Contains(block, []byte("From:")) || bytes.Contains(block, []byte("Subject:")) {
			return terminate(block)
		}
	}
	return nil
}

// headerBlock returns data from start up to and including the first blank
// line, or MaxHeaderSearchBytes of data when there is none. NUL bytes of
// UTF-16 text are dropped.
func headerBlock(data []byte, start int) []byte {
	limit := min(len(data), start+MaxHeaderSearchBytes)
	end := limit
	for i := start; i < limit; i++ {
		if bytes.HasPrefix(data[i:], []byte("\r\n\r\n")) {
			end = i + 4
			break
		}
		if bytes.HasPrefix(data[i:], []byte("\n\n")) {
			end = i + 2
			break
		}
	}
	return bytes.ReplaceAll(data[start:end], []byte{0}, []byte{})
}

func terminate(block []byte) []byte {
	switch {
	case bytes.HasSuffix(block, []byte("\r\n\r\n")), bytes.HasSuffix(block, []byte("\n\n")):
		return block
	case bytes.Contains(block, []byte("\r\n")):
		return append(bytes.TrimRight(block, "\r\n"), "\r\n\r\n"...)
	default:
		return append(bytes.TrimRight(block, "\n"), "\n\n"...)
	}
}

// readMailbox returns the raw messages of an mbox file in order
func readMailbox(filename string) ([][]byte, error) {
	f, _, err := openInput(filename)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var messages [][]byte
	reader := mbox.NewReader(f)
	for {
		msg, err := reader.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read message %d", len(messages)+1)
		}
		data, err := io.ReadAll(io.LimitReader(msg, MaxFileSizeBytes))
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read message %d", len(messages)+1)
		}
		messages = append(messages, data)
		if len(messages) > MaxMailboxMessages {
			return nil, eris.Errorf("mailbox holds more than %d messages", MaxMailboxMessages)
		}
	}
	return messages, nil
}

// sanitizeHeader removes control characters before a value reaches the
// terminal
func sanitizeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", "")
	value = strings.ReplaceAll(value, "\n", "")

	// Remove control characters except tab
	value = strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		return r
	}, value)

	if len(value) > MaxHeaderLength {
		value = value[:MaxHeaderLength]
	}
	return strings.TrimSpace(value)
}
