package config

import "strings"

// 规范化后的列名
const (
	ColTimestamp = "Timestamp"
	ColNama      = "Nama"
	ColUmur      = "Umur"
	ColGender    = "Jenis Kelamin"
	ColEducation = "Pendidikan"
	ColJob       = "Pekerjaan"
	ColFeedback  = "Feedback"
	ColBukti     = "Bukti"

	ColQ1 = "Q1_Perilaku"
	ColQ2 = "Q2_Biaya"
	ColQ3 = "Q3_Waktu"
	ColQ4 = "Q4_Prosedur"
	ColQ5 = "Q5_Kesesuaian"
	ColQ6 = "Q6_Kemampuan"
	ColQ7 = "Q7_Pengaduan"
	ColQ8 = "Q8_Maklumat"
	ColQ9 = "Q9_Rating_Total"
)

// ColumnMapping 问卷导出表头 -> 规范列名
// 第 11 题的表头末尾带空格, 与导出文件保持一致
var ColumnMapping = map[string]string{
	"Cap waktu":             ColTimestamp,
	"1. Nama Lengkap":       ColNama,
	"2. Umur":               ColUmur,
	"3. Jenis Kelamin":      ColGender,
	"4. Jenjang Pendidikan": ColEducation,
	"5. Pekerjaan":          ColJob,

	"6. Bagaimana pendapat saudara tentang perilaku petugas dalam memberikan pelayanan?":                                                                     ColQ1,
	"7. Bagaimana pendapat saudara tentang biaya/tarif pelayanan yg ditetapkan oleh petugas pelayanan?":                                                      ColQ2,
	"8. Bagaimana pendapat saudara tentang waktu yang diperlukan untuk mendapatkan produk layanan?":                                                          ColQ3,
	"9. Bagaimana pendapat saudara tentang prosedur yang harus ditempuh untuk mendapatkan pelayanan?":                                                        ColQ4,
	"10. Bagaimana pendapat saudara antara jenis pelayanan yang yg di mohon dengan persyaratan yg diminta oleh petugas pelayanan, apakah sesuai atau tidak?": ColQ5,
	"11. Bagaimana pendapat saudara untuk tentang kemampuan petugas dalam memberikan pelayanan ":                                                             ColQ6,
	"12. Bagaimana pendapat saudara tentang penanganan pengaduan masyarakat oleh petugas pelayanan?":                                                         ColQ7,
	"13. Bagaimana pendapat saudara tentang keberadaan maklumat / janji pelayanan?":                                                                          ColQ8,
	"14. Berapa menurut anda nilai peringkat pelayanan yg dilakukan oleh petugas?":                                                                           ColQ9,
	"15. Apakah saudara memiliki sebuah laporan/keluhan saudara yang ingin di sampaikan ke kantor desa":                                                      ColFeedback,
	"Bukti untuk pelaporan/keluhan jika ada":                                                                                                                 ColBukti,
}

// ScoreColumns 九个满意度题目, 顺序即图表顺序
var ScoreColumns = []string{ColQ1, ColQ2, ColQ3, ColQ4, ColQ5, ColQ6, ColQ7, ColQ8, ColQ9}

// AspectLabels 题目代码对应的展示名称
var AspectLabels = map[string]string{
	ColQ1: "Perilaku Petugas",
	ColQ2: "Biaya Pelayanan",
	ColQ3: "Waktu Pelayanan",
	ColQ4: "Prosedur",
	ColQ5: "Kesesuaian Syarat",
	ColQ6: "Kompetensi Petugas",
	ColQ7: "Penanganan Aduan",
	ColQ8: "Maklumat Layanan",
	ColQ9: "Rating Umum",
}

// CollapseSpaces 合并连续空白并去掉首尾空白, 用于表头的宽松匹配
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var looseMapping = func() map[string]string {
	m := make(map[string]string, len(ColumnMapping))
	for raw, canonical := range ColumnMapping {
		m[CollapseSpaces(raw)] = canonical
	}
	return m
}()

// CanonicalName 返回表头对应的规范列名, 先精确匹配再按空白宽松匹配
func CanonicalName(raw string) (string, bool) {
	if name, ok := ColumnMapping[raw]; ok {
		return name, true
	}
	name, ok := looseMapping[CollapseSpaces(raw)]
	return name, ok
}
