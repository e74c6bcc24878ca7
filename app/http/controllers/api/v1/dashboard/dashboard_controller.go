package dashboard

import (
	"github.com/gin-gonic/gin"

	"evently/pkg/hooks"
	"evently/pkg/response"
)

// DashboardController 运营侧实时读模型
// 数据来自变更总线在内存中维护的行镜像，不直接查库
type DashboardController struct {
	store *hooks.Store
}

// NewDashboardController 创建仪表盘控制器
func NewDashboardController(store *hooks.Store) *DashboardController {
	return &DashboardController{store: store}
}

// Index 列出某张表的全部镜像行，新行在前
func (dc *DashboardController) Index(c *gin.Context) {
	table := c.Param("table")
	if !validTable(table) {
		response.Abort404(c, "未知的数据表")
		return
	}

	response.Data(c, gin.H{
		"table": table,
		"rows":  dc.store.List(table),
	})
}

// Show 按 ID 查询单条镜像行
func (dc *DashboardController) Show(c *gin.Context) {
	table := c.Param("table")
	if !validTable(table) {
		response.Abort404(c, "未知的数据表")
		return
	}

	row, ok := dc.store.Get(table, c.Param("id"))
	if !ok {
		response.Abort404(c, "记录不存在")
		return
	}
	response.Data(c, row)
}

func validTable(table string) bool {
	switch table {
	case "orders", "payments", "registrations":
		return true
	}
	return false
}
