package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

var (
	// ErrUnsupportedEncoding 는 gzip / deflate / "" 이외의 Content-Encoding.
	// 요청 전체를 거절하며 디코딩은 시도하지 않는다.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")

	// ErrPayloadTooLarge 는 압축 해제 결과가 limit 을 넘은 경우.
	ErrPayloadTooLarge = errors.New("decompressed payload too large")
)

// Decompress 는 Content-Encoding 라벨에 맞게 data 를 전부 메모리로 풀어낸다.
// limit 이 0 보다 크면 압축 해제 결과가 limit 바이트를 넘는 순간 실패한다.
// encoding 이 비어 있으면 입력을 그대로 돌려준다.
func Decompress(data []byte, encoding string, limit int64) ([]byte, error) {
	var (
		r   io.ReadCloser
		err error
	)

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "":
		if limit > 0 && int64(len(data)) > limit {
			return nil, ErrPayloadTooLarge
		}
		return data, nil
	case "gzip":
		r, err = gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip header: %w", err)
		}
	case "deflate":
		r = flate.NewReader(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}
	defer r.Close()

	src := io.Reader(r)
	if limit > 0 {
		// limit+1 까지 읽어서 초과 여부를 판단
		src = io.LimitReader(r, limit+1)
	}

	var out bytes.Buffer
	out.Grow(len(data) * 4)
	if _, err := io.Copy(&out, src); err != nil {
		return nil, fmt.Errorf("%s decompress: %w", encoding, err)
	}
	if limit > 0 && int64(out.Len()) > limit {
		return nil, ErrPayloadTooLarge
	}
	return out.Bytes(), nil
}

// Compress 는 Decompress 의 역연산. 테스트 및 batchgen 에서 배치를 만들 때 쓴다.
func Compress(data []byte, encoding string) ([]byte, error) {
	var (
		buf bytes.Buffer
		w   io.WriteCloser
		err error
	)

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "":
		return data, nil
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "deflate":
		w, err = flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
