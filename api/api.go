/*
Copyright 2025 LeadLoop Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/leadloop/leadloop"
	"github.com/leadloop/leadloop/api/middleware"
	"github.com/leadloop/leadloop/config"
)

type Api struct {
	engine *leadloop.LeadLoop
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/conversations", a.CreateConversation)
	router.GET("/conversations", a.GetAllConversations)
	router.GET("/conversations/:id", a.GetConversation)

	router.POST("/conversations/:id/messages", a.RecordInboundMessage)
	router.GET("/conversations/:id/messages", a.GetConversationMessages)
	router.POST("/conversations/:id/send", a.SendManualMessage)

	router.GET("/conversations/:id/transitions", a.GetConversationTransitions)
	router.POST("/conversations/:id/instruction", a.SetManualInstruction)
	router.PUT("/conversations/:id/ai", a.ToggleAI)
	router.POST("/conversations/:id/unlock", a.UnlockConversation)
	router.POST("/locks/reap", a.ReapStaleLocks)

	router.POST("/conversations/:id/offers", a.CreateOffer)
	router.GET("/conversations/:id/offers", a.GetActiveOffers)

	return a.router
}

func NewAPI(engine *leadloop.LeadLoop) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{engine: engine, router: r}
}
