// batchgen builds an encoded telemetry batch from JSON records.
//
// Input is a stream of JSON objects (one per line, or simply
// concatenated) read from --in or stdin. Each object becomes one CBOR
// item of the batch. The batch is optionally compressed and either
// written to --out / stdout or POSTed to a running collector with --url,
// in which case the decoded response is printed.
//
// --truncate drops trailing bytes from the uncompressed batch, which
// produces a corrupt last record for exercising early-stop decoding.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"collector-decode/internal/decode"
	"collector-decode/internal/model"

	json "github.com/goccy/go-json"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	var (
		inPath   string
		outPath  string
		encoding string
		url      string
		clientID string
		truncate int
	)

	flagSet := pflag.NewFlagSet("batchgen", pflag.ContinueOnError)
	flagSet.StringVarP(&inPath, "in", "i", "", "JSON records file (default: stdin)")
	flagSet.StringVarP(&outPath, "out", "o", "", "write the encoded batch to this file (default: stdout)")
	flagSet.StringVarP(&encoding, "encoding", "e", "gzip", "content encoding: gzip, deflate or empty")
	flagSet.StringVar(&url, "url", "", "POST the batch to this collector URL instead of writing it")
	flagSet.StringVar(&clientID, "client-id", "batchgen", "Client-Id header sent with --url")
	flagSet.IntVar(&truncate, "truncate", 0, "drop this many trailing bytes before compression")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	in := stdin
	if inPath != "" {
		f, err := os.Open(inPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	events, err := readEvents(in)
	if err != nil {
		return err
	}

	raw, err := decode.Encode(events)
	if err != nil {
		return err
	}
	if truncate > 0 {
		if truncate > len(raw) {
			truncate = len(raw)
		}
		raw = raw[:len(raw)-truncate]
	}

	body, err := decode.Compress(raw, encoding)
	if err != nil {
		return err
	}

	if url != "" {
		return post(url, clientID, encoding, body, stdout)
	}

	if outPath != "" {
		return os.WriteFile(outPath, body, 0o644)
	}
	_, err = stdout.Write(body)
	return err
}

func readEvents(r io.Reader) ([]model.Event, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var events []model.Event
	for {
		var ev model.Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("record %d: %w", len(events), err)
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, errors.New("no records in input")
	}
	return events, nil
}

func post(url, clientID, encoding string, body []byte, stdout io.Writer) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/cbor-seq")
	req.Header.Set("Client-Id", clientID)
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(stdout, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collector responded %s", resp.Status)
	}
	return nil
}
