package decode

import (
	"errors"
	"fmt"

	"collector-decode/internal/model"

	"github.com/rs/zerolog/log"
)

// ErrCorruptBatch 는 strict 모드에서 깨진 레코드를 만난 경우.
var ErrCorruptBatch = errors.New("corrupt record in batch")

// Options 는 Pipeline 동작 옵션.
type Options struct {
	MaxDecompressedSize int64 // 0 = 무제한
	Strict              bool  // true 면 깨진 레코드에서 에러
	Pretty              bool  // 응답 JSON 들여쓰기
}

// Pipeline
// ------------------------------------------------------------
// 요청 body 하나를 처리하는 순차 파이프라인.
//
//	Decompress → DecodeAll → Flatten(레코드마다) → Assemble
//
// 상태를 갖지 않으므로 여러 goroutine 에서 동시에 써도 된다.
type Pipeline struct {
	opts Options
}

func NewPipeline(opts Options) *Pipeline {
	return &Pipeline{opts: opts}
}

// Run 은 압축된 배치를 디코딩해 Batch 를 만든다.
// 압축 해제 실패, strict 모드의 깨진 배치만 에러가 된다.
func (p *Pipeline) Run(body []byte, encoding string) (*model.Batch, error) {
	raw, err := Decompress(body, encoding, p.opts.MaxDecompressedSize)
	if err != nil {
		return nil, err
	}

	decoded, stats := DecodeAll(raw)
	if stats.Corrupt && p.opts.Strict {
		return nil, fmt.Errorf("%w: offset=%d after %d records: %s",
			ErrCorruptBatch, stats.Offset, stats.Records, stats.Reason)
	}

	batch := &model.Batch{
		Records:       make([]string, 0, len(decoded)),
		Corrupt:       stats.Corrupt,
		CorruptReason: stats.Reason,
		CorruptOffset: stats.Offset,
	}

	for i, rec := range decoded {
		flat, fieldErrs, err := FlattenFields(rec)
		batch.FieldErrors += len(fieldErrs)
		if err != nil {
			// 코덱이 map 만 넘기므로 사실상 발생하지 않는다
			log.Warn().Err(err).Int("index", i).Msg("record dropped")
			batch.DroppedCount++
			continue
		}
		batch.Records = append(batch.Records, flat)
	}

	batch.JSON = Assemble(batch.Records, p.opts.Pretty)
	return batch, nil
}
