package resume_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/AnsuryX/Autojob-Mvp/internal/resume"
)

func TestDetectMIME(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ct, name, want string
	}{
		{"application/pdf", "cv", resume.MIMEPDF},
		{"text/plain; charset=utf-8", "cv", resume.MIMEText},
		{"application/octet-stream", "CV.DOCX", resume.MIMEDOCX},
		{"", "resume.pdf", resume.MIMEPDF},
		{"", "notes.md", resume.MIMEText},
		{"image/png", "photo.png", "image/png"},
	}
	for _, tc := range tests {
		if got := resume.DetectMIME(tc.ct, tc.name); got != tc.want {
			t.Errorf("DetectMIME(%q, %q) = %q, want %q", tc.ct, tc.name, got, tc.want)
		}
	}
}

func TestExtract_PlainText(t *testing.T) {
	t.Parallel()

	in := "Ada Lovelace  \r\nEngineer\n\n\n\nSkills: Go\n"
	got, err := resume.Extract(resume.MIMEText, []byte(in))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if want := "Ada Lovelace\nEngineer\n\nSkills: Go"; got != want {
		t.Errorf("Extract = %q, want %q", got, want)
	}
}

func TestExtract_Errors(t *testing.T) {
	t.Parallel()

	if _, err := resume.Extract("image/png", []byte{1}); !errors.Is(err, resume.ErrUnsupportedType) {
		t.Errorf("png: err = %v, want ErrUnsupportedType", err)
	}
	if _, err := resume.Extract(resume.MIMEText, []byte{0xff, 0xfe}); err == nil {
		t.Error("invalid utf-8: expected error")
	}
	if _, err := resume.Extract(resume.MIMEPDF, []byte("not a pdf")); err == nil {
		t.Error("garbage pdf: expected error")
	}
	if _, err := resume.Extract(resume.MIMEDOCX, []byte("not a zip")); err == nil {
		t.Error("garbage docx: expected error")
	}
}

func TestReadLimited(t *testing.T) {
	t.Parallel()

	if _, err := resume.ReadLimited(strings.NewReader("small")); err != nil {
		t.Errorf("small upload: %v", err)
	}
	big := bytes.NewReader(make([]byte, resume.MaxUploadBytes+1))
	if _, err := resume.ReadLimited(big); err == nil {
		t.Error("oversized upload: expected error")
	}
}

func TestKeys(t *testing.T) {
	t.Parallel()

	if got := resume.ResumeKey("u/1", "t1", "../../cv.pdf"); got != "resumes/u_1/t1/cv.pdf" {
		t.Errorf("ResumeKey = %q", got)
	}
	if got := resume.TranscriptKey("u1", ""); got != "transcripts/u1/_.txt" {
		t.Errorf("TranscriptKey = %q", got)
	}
}

// fakeS3 is an in-memory ObjectAPI.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	headErr error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestArchive_PutGet(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	a := resume.NewArchive(fake, "bucket")
	ctx := context.Background()

	key := resume.TranscriptKey("u1", "s1")
	if err := a.Put(ctx, key, resume.MIMEText, []byte("Interviewer: hi")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := fake.types["bucket/"+key]; got != resume.MIMEText {
		t.Errorf("content type = %q", got)
	}
	got, err := a.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "Interviewer: hi" {
		t.Errorf("Get = %q", got)
	}
	if _, err := a.Get(ctx, "missing"); err == nil {
		t.Error("Get(missing): expected error")
	}
	if err := a.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
	fake.headErr = errors.New("forbidden")
	if err := a.Ping(ctx); err == nil {
		t.Error("Ping: expected error")
	}
}

func TestNewR2Archive_Validates(t *testing.T) {
	t.Parallel()

	if _, err := resume.NewR2Archive(context.Background(), resume.R2Config{Bucket: "b"}); err == nil {
		t.Error("missing credentials: expected error")
	}
	if _, err := resume.NewR2Archive(context.Background(), resume.R2Config{Bucket: "b", AccessKey: "a", SecretKey: "s"}); err == nil {
		t.Error("missing account and endpoint: expected error")
	}
}
