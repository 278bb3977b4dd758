package pool

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ---------------------------------------------------------------
// Pool 구성 목적
//
// 요청마다 body 버퍼를 새로 잡고, archive 때마다 gzip writer 를
// 새로 만들면 GC 부담이 커진다. 아래 Pool 들로 재사용한다.
// ---------------------------------------------------------------

var (
	// BodyPool:
	//   - 압축된 요청 body 를 임시 저장하는 버퍼
	//   - 초기 용량 16KB
	//   - 너무 큰 버퍼는 PutBody 에서 버린다
	BodyPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 16*1024))
		},
	}

	// BufferPool:
	//   - archive snapshot gzip 결과를 담는 임시 버퍼
	//   - 1MB 초과 버퍼는 풀에 넣지 않음
	BufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 256*1024))
		},
	}

	// GzipPool:
	//   - gzip.Writer 재사용 (BestSpeed)
	GzipPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

// Pool에 되돌려줄 최대 버퍼 용량
const MaxBufferCap = 1 * 1024 * 1024 // 1MB

// PutBody:
//   - maxCap(보통 MaxBodySize*2)보다 크면 버려서 GC로.
func PutBody(buf *bytes.Buffer, maxCap int64) {
	if int64(buf.Cap()) <= maxCap {
		buf.Reset()
		BodyPool.Put(buf)
	}
}

// PutBuffer:
//   - 1MB 이하이면 풀에 재사용
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= MaxBufferCap {
		buf.Reset()
		BufferPool.Put(buf)
	}
}

// Gzip 은 data 를 pool 의 gzip.Writer 로 압축한 새 slice 를 돌려준다.
// 반환값은 호출자 소유이다 (pool 버퍼를 그대로 넘기지 않는다).
func Gzip(data []byte) ([]byte, error) {
	buf := BufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer PutBuffer(buf)

	gz := GzipPool.Get().(*gzip.Writer)
	gz.Reset(buf)
	defer GzipPool.Put(gz)

	if _, err := gz.Write(data); err != nil {
		_ = gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
