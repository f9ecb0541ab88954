// Package handler 提供管理与查询 HTTP 接口
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
)

// Response 统一响应结构
type Response struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 返回成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, &Response{Code: "OK", Message: "success", Data: data})
}

// Created 返回创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, &Response{Code: "OK", Message: "created", Data: data})
}

// BadRequest 返回参数错误响应
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, &Response{Code: errors.ErrInvalidArgument.Code, Message: message})
}

// Error 按错误码映射状态码; 非业务错误按 500 处理且不暴露细节
func Error(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	resp := &Response{Code: errors.GetCode(err), Message: errors.GetMessage(err)}
	if status >= http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		if resp.Code == "UNKNOWN" {
			resp.Code = errors.ErrInternal.Code
			resp.Message = errors.ErrInternal.Message
		}
	}
	_ = c.Error(err)
	c.JSON(status, resp)
}

// int64Param 解析路径参数
func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		BadRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return v, true
}

// intQuery 解析可选的查询参数, 缺省时返回 def
func intQuery(c *gin.Context, name string, def int64) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		BadRequest(c, name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}
