package echo

import e "github.com/labstack/echo/v4"

func RegisterRoutes(server *e.Echo, importHandler *ImportHandler, progressHandler *ProgressHandler) {
	imports := server.Group("/api/v1/imports")
	imports.POST("", importHandler.UploadProducts)
	imports.GET("/:id", importHandler.GetImport)
	imports.POST("/:id/cancel", importHandler.CancelImport)
	imports.GET("/:id/events", progressHandler.StreamProgress)
}
