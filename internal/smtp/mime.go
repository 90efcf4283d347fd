package smtp

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
)

// ParsedSubmission 表示解析后的投递内容。
type ParsedSubmission struct {
	Subject string
	Body    string
}

// ParseSubmission 解析客户端提交的邮件，提取主题与纯文本正文。
//
// 多部分邮件只取第一个 text/plain 部分；HTML 与附件忽略，
// 联邦消息体是纯文本。
func ParseSubmission(r io.Reader) (*ParsedSubmission, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse mail: %w", err)
	}

	parsed := &ParsedSubmission{}
	if subject, err := mr.Header.Subject(); err == nil {
		parsed.Subject = subject
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read part: %w", err)
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, err := header.ContentType()
		if err != nil {
			contentType = "text/plain"
		}
		if !strings.HasPrefix(contentType, "text/plain") {
			continue
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		parsed.Body = string(body)
		break
	}

	return parsed, nil
}
