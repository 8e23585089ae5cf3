package api

import "github.com/gin-gonic/gin"

// SetupRoutes registers the /api/v1 routes on router.
func SetupRoutes(router gin.IRouter, h *Handler) {
	v1 := router.Group("/api/v1")

	scan := v1.Group("/scan")
	{
		scan.POST("/start", h.StartScan)
		scan.POST("/documents", h.ScanDocumentsBatch)
		scan.POST("/urls", h.CheckURLsBatch)
		scan.POST("/complete", h.CompleteScan)
		scan.POST("/stop", h.StopScan)
		scan.GET("/status", h.ScanStatus)
	}

	links := v1.Group("/links")
	{
		links.GET("", h.ListLinks)
		links.GET("/stats", h.LinkStats)
		links.POST("/:id/recheck", h.RecheckLink)
		links.POST("/:id/ignore", h.IgnoreLink)
	}

	replace := v1.Group("/replace")
	{
		replace.POST("/preview", h.PreviewReplace)
		replace.POST("/execute", h.ExecuteReplace)
		replace.POST("/undo", h.UndoReplace)
	}
	v1.GET("/operations", h.ListOperations)

	rules := v1.Group("/rules")
	{
		rules.GET("", h.ListRules)
		rules.POST("", h.AddRule)
		rules.POST("/apply", h.ApplyRules)
		rules.GET("/:id", h.GetRule)
		rules.PUT("/:id", h.UpdateRule)
		rules.DELETE("/:id", h.DeleteRule)
		rules.POST("/:id/toggle", h.ToggleRule)
	}

	export := v1.Group("/export")
	{
		export.GET("/links", h.ExportLinks)
		export.GET("/stats", h.ExportStats)
	}

	v1.GET("/settings", h.GetSettings)
	v1.PUT("/settings", h.UpdateSettings)
}
