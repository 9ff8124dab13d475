// email_handler.go
package email

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"KepuasanMasyarakat/src/datasource/file"
	"KepuasanMasyarakat/src/storage"
	"KepuasanMasyarakat/src/utils"

	"github.com/go-gota/gota/dataframe"
	"go.uber.org/zap"
)

// ====================== 邮件处理器实现 ======================

// SurveyAttachmentHandler 把问卷导出附件保存为本地备份文件
type SurveyAttachmentHandler struct {
	TargetPath    string          // 本地备份文件路径
	SheetName     string          // xlsx 附件的工作表, 为空取第一个
	processedUIDs map[uint32]bool // 已处理邮件UID记录
	mu            sync.RWMutex    // 保护processedUIDs的读写锁
	logger        *storage.Logger
}

// NewSurveyAttachmentHandler 创建附件处理器
func NewSurveyAttachmentHandler(targetPath, sheetName string, logger *storage.Logger) *SurveyAttachmentHandler {
	return &SurveyAttachmentHandler{
		TargetPath:    targetPath,
		SheetName:     sheetName,
		processedUIDs: make(map[uint32]bool),
		logger:        logger,
	}
}

// IsProcessed 检查邮件是否已处理过
func (h *SurveyAttachmentHandler) IsProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

func (h *SurveyAttachmentHandler) markAsProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// Handle 取第一个 .csv/.xlsx 附件, 校验后原子替换本地备份文件.
// 附件格式与目标文件不同时先转换. 每个 UID 只处理一次.
func (h *SurveyAttachmentHandler) Handle(email *Email) (bool, error) {
	if h.IsProcessed(email.UID) {
		return false, nil
	}

	att := firstSurveyAttachment(email.Attachments)
	if att == nil {
		h.logger.Debug("邮件没有可用附件", zap.String("subject", email.Subject))
		return false, nil
	}

	df, err := h.parseAttachment(att)
	if err != nil {
		return false, fmt.Errorf("附件 %s 无法解析: %w", att.Filename, err)
	}

	content, err := h.encodeForTarget(att, df)
	if err != nil {
		return false, err
	}
	if err := writeFileAtomic(h.TargetPath, content); err != nil {
		return false, fmt.Errorf("保存附件失败: %w", err)
	}

	h.markAsProcessed(email.UID)
	h.logger.Info("附件已保存",
		zap.String("attachment", att.Filename),
		zap.String("path", h.TargetPath),
		zap.Int("rows", df.Nrow()),
		zap.String("from", email.From))
	return true, nil
}

func attachmentExt(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

func firstSurveyAttachment(atts []*Attachment) *Attachment {
	for _, a := range atts {
		switch attachmentExt(a.Filename) {
		case ".csv", ".xlsx":
			return a
		}
	}
	return nil
}

func (h *SurveyAttachmentHandler) parseAttachment(att *Attachment) (dataframe.DataFrame, error) {
	if attachmentExt(att.Filename) == ".xlsx" {
		return file.ParseXLSX(att.Content, h.SheetName)
	}
	return utils.ReadCSV(bytes.NewReader(att.Content))
}

// encodeForTarget 格式相同时保留原始内容, 否则转换格式
func (h *SurveyAttachmentHandler) encodeForTarget(att *Attachment, df dataframe.DataFrame) ([]byte, error) {
	targetExt := attachmentExt(h.TargetPath)
	if targetExt != ".xlsx" {
		targetExt = ".csv"
	}
	if attachmentExt(att.Filename) == targetExt {
		return att.Content, nil
	}

	var buf bytes.Buffer
	if targetExt == ".xlsx" {
		if err := utils.WriteExcel(df, &buf, h.SheetName); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	if err := df.WriteCSV(&buf); err != nil {
		return nil, fmt.Errorf("转换为csv失败: %w", err)
	}
	return buf.Bytes(), nil
}

// writeFileAtomic 先写同目录临时文件再改名
func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
