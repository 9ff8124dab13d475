package email

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"KepuasanMasyarakat/src/datasource/file"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"
)

const surveyCSV = "Cap waktu,1. Nama Lengkap\n2024/01/01 10:00:00,Siti\n"

func rawMessage(subject, filename string, content []byte) string {
	lines := []string{
		"From: Admin Survei <admin@example.com>",
		"To: dashboard@example.com",
		"Subject: " + subject,
		"Date: Mon, 01 Jan 2024 10:00:00 +0700",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="BOUNDARY"`,
		"",
		"--BOUNDARY",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Terlampir hasil survei.",
		"--BOUNDARY",
		`Content-Type: application/octet-stream; name="` + filename + `"`,
		`Content-Disposition: attachment; filename="` + filename + `"`,
		"Content-Transfer-Encoding: base64",
		"",
		base64.StdEncoding.EncodeToString(content),
		"--BOUNDARY--",
		"",
	}
	return strings.Join(lines, "\r\n")
}

func TestParseEmail(t *testing.T) {
	raw := rawMessage("=?ISO-8859-1?Q?Ekspor_Survei_Caf=E9?=", "survey.csv", []byte(surveyCSV))

	email, err := ParseEmail(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Ekspor Survei Café", email.Subject)
	assert.Contains(t, email.From, "admin@example.com")
	assert.Equal(t, 2024, email.Date.Year())
	require.Len(t, email.Attachments, 1)
	assert.Equal(t, "survey.csv", email.Attachments[0].Filename)
	assert.Equal(t, surveyCSV, string(email.Attachments[0].Content))
}

func TestDecodeHeader(t *testing.T) {
	assert.Equal(t, "问卷", decodeHeader("=?GBK?B?zsq+7Q==?="))
	assert.Equal(t, "Survei", decodeHeader("=?UTF-8?Q?Survei?="))
	assert.Equal(t, "plain text", decodeHeader("plain text"))
}

func TestFilterLatestTargetEmail(t *testing.T) {
	att := []*Attachment{{Filename: "a.csv"}}
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	emails := []*Email{
		{UID: 1, Subject: "Survey Kepuasan Masyarakat", Date: day, Attachments: att},
		{UID: 2, Subject: "survey kepuasan masyarakat (update)", Date: day.Add(time.Hour), Attachments: att},
		{UID: 3, Subject: "Survey Kepuasan Masyarakat", Date: day.Add(2 * time.Hour)}, // 没有附件
		{UID: 4, Subject: "Rapat", Date: day.Add(3 * time.Hour), Attachments: att},
	}

	got := filterLatestTargetEmail(emails, "Survey Kepuasan")
	require.NotNil(t, got)
	assert.Equal(t, uint32(2), got.UID)

	assert.Nil(t, filterLatestTargetEmail(emails, "Laporan"))
	assert.Nil(t, filterLatestTargetEmail(nil, "Survey"))
}

type fakeMailService struct {
	emails       []*Email
	connectErr   error
	fetchErr     error
	disconnected bool
}

func (f *fakeMailService) Connect() error { return f.connectErr }
func (f *fakeMailService) Disconnect()    { f.disconnected = true }
func (f *fakeMailService) FetchUnreadEmails() ([]*Email, error) {
	return f.emails, f.fetchErr
}

func TestCheckAndProcessEmails(t *testing.T) {
	target := filepath.Join(t.TempDir(), "Survey Kepuasan Masyarakat.csv")
	handler := NewSurveyAttachmentHandler(target, "", nil)
	svc := &fakeMailService{emails: []*Email{{
		UID:         7,
		Subject:     "Survey Kepuasan Masyarakat",
		Date:        time.Now(),
		Attachments: []*Attachment{{Filename: "export.csv", Content: []byte(surveyCSV)}},
	}}}

	saved, err := CheckAndProcessEmails(context.Background(), svc, handler, "Survey", nil)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.True(t, svc.disconnected)
	assert.True(t, handler.IsProcessed(7))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, surveyCSV, string(got))

	// 同一封邮件不会重复处理
	saved, err = CheckAndProcessEmails(context.Background(), svc, handler, "Survey", nil)
	require.NoError(t, err)
	assert.False(t, saved)
}

func TestCheckAndProcessEmailsErrors(t *testing.T) {
	handler := NewSurveyAttachmentHandler(filepath.Join(t.TempDir(), "s.csv"), "", nil)

	_, err := CheckAndProcessEmails(context.Background(), &fakeMailService{connectErr: errors.New("refused")}, handler, "Survey", nil)
	assert.ErrorContains(t, err, "refused")

	_, err = CheckAndProcessEmails(context.Background(), &fakeMailService{fetchErr: errors.New("timeout")}, handler, "Survey", nil)
	assert.ErrorContains(t, err, "timeout")

	saved, err := CheckAndProcessEmails(context.Background(), &fakeMailService{}, handler, "Survey", nil)
	assert.NoError(t, err)
	assert.False(t, saved)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = CheckAndProcessEmails(ctx, &fakeMailService{}, handler, "Survey", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func xlsxBytes(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Form Responses 1")
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "a.xlsx")
	require.NoError(t, f.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestHandlerConvertsXLSXToCSV(t *testing.T) {
	target := filepath.Join(t.TempDir(), "data", "survey.csv")
	handler := NewSurveyAttachmentHandler(target, "", nil)

	email := &Email{UID: 1, Attachments: []*Attachment{
		{Filename: "catatan.txt", Content: []byte("abaikan")},
		{Filename: "Export.XLSX", Content: xlsxBytes(t, [][]string{{"1. Nama Lengkap", "2. Umur"}, {"Siti", "30"}})},
	}}
	saved, err := handler.Handle(email)
	require.NoError(t, err)
	require.True(t, saved)

	df, err := file.ReadCSVFile(target)
	require.NoError(t, err)
	assert.Equal(t, []string{"1. Nama Lengkap", "2. Umur"}, df.Names())
	assert.Equal(t, []string{"Siti"}, df.Col("1. Nama Lengkap").Records())

	// 不留下临时文件
	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestHandlerConvertsCSVToXLSX(t *testing.T) {
	target := filepath.Join(t.TempDir(), "survey.xlsx")
	handler := NewSurveyAttachmentHandler(target, "", nil)

	saved, err := handler.Handle(&Email{UID: 1, Attachments: []*Attachment{{Filename: "s.csv", Content: []byte(surveyCSV)}}})
	require.NoError(t, err)
	require.True(t, saved)

	df, err := file.ReadXLSX(target, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Siti"}, df.Col("1. Nama Lengkap").Records())
}

func TestHandlerRejectsBrokenAttachment(t *testing.T) {
	target := filepath.Join(t.TempDir(), "survey.csv")
	handler := NewSurveyAttachmentHandler(target, "", nil)

	saved, err := handler.Handle(&Email{UID: 9, Attachments: []*Attachment{{Filename: "s.xlsx", Content: []byte("bukan xlsx")}}})
	assert.Error(t, err)
	assert.False(t, saved)
	assert.False(t, handler.IsProcessed(9))
	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))

	// 没有可用附件
	saved, err = handler.Handle(&Email{UID: 10, Attachments: []*Attachment{{Filename: "a.pdf"}}})
	assert.NoError(t, err)
	assert.False(t, saved)
}
