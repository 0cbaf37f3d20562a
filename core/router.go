package core

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, store *sessions.CookieStore, authService *RepositoryAuthService, sessionStore *RedisSessionStore, db *pgxpool.Pool, redisClient *redis.Client) *gin.Engine {
	startedAt := time.Now()
	r := gin.Default()

	userRepo := NewPgUserRepository(db)
	recipeRepo := NewPgRecipeRepository(db)
	categoryRepo := NewPgCategoryRepository(db)
	commentRepo := NewPgCommentRepository(db)
	ingredientRepo := NewPgIngredientRepository(db)

	// Global middleware: origin/CORS -> cookie session -> CSRF -> principal
	r.Use(OriginRefererMiddleware(cfg))
	r.Use(SessionMiddleware(cfg, store))
	r.Use(CSRFMiddleware(cfg, store))
	r.Use(PrincipalMiddleware(sessionStore, userRepo))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Uploaded recipe images.
	r.Static("/uploads", cfg.UploadDir)

	api := r.Group("/api/v1")
	{
		api.POST("/auth/register", func(c *gin.Context) {
			var req struct {
				Name     string `json:"name"`
				Email    string `json:"email"`
				Password string `json:"password"`
				Role     string `json:"role"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "nom, email et mot de passe sont requis")
				return
			}

			ctx := c.Request.Context()
			u, err := authService.Register(ctx, req.Name, req.Email, req.Password, req.Role)
			if err != nil {
				if errors.Is(err, ErrDuplicateEmail) {
					// Deliberately vague: registration surface gets one
					// generic failure, the same for any cause.
					respondError(c, http.StatusConflict, "REGISTRATION_FAILED", "inscription impossible")
					return
				}
				if errors.Is(err, ErrStoreUnavailable) {
					respondError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "service indisponible")
					return
				}
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}

			c.JSON(http.StatusCreated, gin.H{
				"id":         u.ID,
				"name":       u.Name,
				"email":      u.Email,
				"role":       u.Role,
				"created_at": u.CreatedAt,
			})
		})

		api.POST("/auth/login", func(c *gin.Context) {
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			ctx := c.Request.Context()
			principal, err := authService.Authenticate(ctx, req.Email, req.Password)
			if err != nil {
				if errors.Is(err, ErrStoreUnavailable) {
					respondError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "service indisponible")
					return
				}
				// One message for unknown email and wrong password alike.
				respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Email ou mot de passe incorrect")
				return
			}

			sessionAny, _ := c.Get("session")
			sess, _ := sessionAny.(*sessions.Session)
			if sess == nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
				return
			}

			// Rotate: drop any server-side record the old cookie pointed at.
			if old, _ := sess.Values[sessionIDKey].(string); old != "" {
				_ = sessionStore.Destroy(ctx, old)
			}

			token := SerializePrincipal(principal)
			sid, err := sessionStore.Create(ctx, token)
			if err != nil {
				respondError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "service indisponible")
				return
			}

			csrf := sess.Values["csrf_token"]
			sess.Values = map[interface{}]interface{}{}
			sess.Values["csrf_token"] = csrf
			sess.Values[sessionIDKey] = sid
			applySessionOptions(cfg, sess)
			if err := sess.Save(c.Request, c.Writer); err != nil {
				_ = sessionStore.Destroy(ctx, sid)
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to set session")
				return
			}

			c.JSON(http.StatusOK, gin.H{"user": gin.H{
				"id":    principal.UserID,
				"name":  principal.Name,
				"email": principal.Email,
				"role":  principal.Role,
			}})
		})

		api.POST("/auth/logout", func(c *gin.Context) {
			sessionAny, _ := c.Get("session")
			sess, _ := sessionAny.(*sessions.Session)
			if sess == nil {
				respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "connexion requise")
				return
			}
			if sid, _ := sess.Values[sessionIDKey].(string); sid != "" {
				_ = sessionStore.Destroy(c.Request.Context(), sid)
			}
			sess.Values = map[interface{}]interface{}{}
			applySessionOptions(cfg, sess)
			sess.Options.MaxAge = -1 // Must be set AFTER applySessionOptions to properly delete cookie
			if err := sess.Save(c.Request, c.Writer); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to clear session")
				return
			}
			c.Status(http.StatusNoContent)
		})

		api.GET("/users/me", func(c *gin.Context) {
			p, ok := requireLogin(c)
			if !ok {
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"id":    p.UserID,
				"name":  p.Name,
				"email": p.Email,
				"role":  p.Role,
			})
		})

		api.GET("/categories", func(c *gin.Context) {
			items, err := categoryRepo.List(c.Request.Context())
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch categories")
				return
			}
			c.JSON(http.StatusOK, gin.H{"categories": items})
		})

		api.GET("/categories/:id", func(c *gin.Context) {
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil || id <= 0 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			cat, err := categoryRepo.Get(c.Request.Context(), id)
			if err != nil {
				if errors.Is(err, ErrCategoryNotFound) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "catégorie non trouvée")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch category")
				return
			}
			c.JSON(http.StatusOK, cat)
		})

		api.GET("/recipes", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			items, total, err := recipeRepo.List(c.Request.Context(), page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch recipes")
				return
			}
			c.JSON(http.StatusOK, paginated(items, page, perPage, total))
		})

		api.GET("/recipes/search", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			name := strings.TrimSpace(c.Query("name"))
			items, total, err := recipeRepo.Search(c.Request.Context(), name, page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to search recipes")
				return
			}
			c.JSON(http.StatusOK, paginated(items, page, perPage, total))
		})

		api.GET("/recipes/category/:id", func(c *gin.Context) {
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil || id <= 0 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			items, total, err := recipeRepo.ListByCategory(c.Request.Context(), id, page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch recipes")
				return
			}
			c.JSON(http.StatusOK, paginated(items, page, perPage, total))
		})

		api.GET("/recipes/:id", func(c *gin.Context) {
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil || id <= 0 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			ctx := c.Request.Context()
			rec, err := recipeRepo.Get(ctx, id)
			if err != nil {
				if errors.Is(err, ErrRecipeNotFound) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "recette non trouvée")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch recipe")
				return
			}
			comments, err := commentRepo.ListByRecipe(ctx, id)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch comments")
				return
			}
			c.JSON(http.StatusOK, gin.H{"recipe": rec, "comments": comments})
		})

		authorRoutes := api.Group("")
		authorRoutes.Use(AuthorOrAdmin())
		{
			authorRoutes.POST("/recipes", func(c *gin.Context) {
				name := strings.TrimSpace(c.PostForm("name"))
				description := strings.TrimSpace(c.PostForm("description"))
				if name == "" {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "le nom est requis")
					return
				}
				categoryIDs, err := parseCategoryIDs(c.PostFormArray("category_ids"))
				if err != nil {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
					return
				}

				imagePath := ""
				if fileHeader, err := c.FormFile("image"); err == nil {
					imagePath, err = SaveUploadedImage(cfg, fileHeader, "image")
					if err != nil {
						respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
						return
					}
				}

				rec, err := recipeRepo.Create(c.Request.Context(), name, description, imagePath, categoryIDs)
				if err != nil {
					_ = RemoveUploadedImage(cfg, imagePath)
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create recipe")
					return
				}
				c.JSON(http.StatusCreated, rec)
			})

			authorRoutes.PATCH("/recipes/:id", func(c *gin.Context) {
				id, err := strconv.ParseInt(c.Param("id"), 10, 64)
				if err != nil || id <= 0 {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
					return
				}
				ctx := c.Request.Context()
				existing, err := recipeRepo.Get(ctx, id)
				if err != nil {
					if errors.Is(err, ErrRecipeNotFound) {
						respondError(c, http.StatusNotFound, "NOT_FOUND", "recette non trouvée")
						return
					}
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch recipe")
					return
				}

				// Absent fields keep their stored value; a submitted empty
				// description clears it. The name can never be cleared.
				name := formValueOr(c, "name", existing.Name)
				if name == "" {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "le nom est requis")
					return
				}
				description := formValueOr(c, "description", existing.Description)
				var categoryIDs []int64
				if raw := c.PostFormArray("category_ids"); len(raw) > 0 {
					categoryIDs, err = parseCategoryIDs(raw)
					if err != nil {
						respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
						return
					}
				}

				imagePath := ""
				if fileHeader, err := c.FormFile("image"); err == nil {
					imagePath, err = SaveUploadedImage(cfg, fileHeader, "image")
					if err != nil {
						respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
						return
					}
				}

				rec, err := recipeRepo.Update(ctx, id, name, description, imagePath, categoryIDs)
				if err != nil {
					_ = RemoveUploadedImage(cfg, imagePath)
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update recipe")
					return
				}
				if imagePath != "" && existing.ImagePath != "" {
					if err := RemoveUploadedImage(cfg, existing.ImagePath); err != nil {
						log.Printf("failed to remove replaced image %s: %v", existing.ImagePath, err)
					}
				}
				c.JSON(http.StatusOK, rec)
			})

			authorRoutes.DELETE("/recipes/:id", func(c *gin.Context) {
				id, err := strconv.ParseInt(c.Param("id"), 10, 64)
				if err != nil || id <= 0 {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
					return
				}
				imagePath, err := recipeRepo.Delete(c.Request.Context(), id)
				if err != nil {
					if errors.Is(err, ErrRecipeNotFound) {
						respondError(c, http.StatusNotFound, "NOT_FOUND", "recette non trouvée")
						return
					}
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to delete recipe")
					return
				}
				if err := RemoveUploadedImage(cfg, imagePath); err != nil {
					log.Printf("failed to remove image %s: %v", imagePath, err)
				}
				c.Status(http.StatusNoContent)
			})
		}

		api.POST("/recipes/:id/comments", func(c *gin.Context) {
			p, ok := requireLogin(c)
			if !ok {
				return
			}
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil || id <= 0 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			var req struct {
				Text   string `json:"text"`
				Rating int    `json:"rating"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			ctx := c.Request.Context()
			if _, err := recipeRepo.Get(ctx, id); err != nil {
				if errors.Is(err, ErrRecipeNotFound) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "recette non trouvée")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch recipe")
				return
			}

			// The author is always the session principal, never a field of
			// the request body.
			cm, err := commentRepo.Create(ctx, id, p.UserID, req.Text, req.Rating)
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			cm.AuthorName = p.Name
			c.JSON(http.StatusCreated, cm)
		})

		api.GET("/ingredients", func(c *gin.Context) {
			items, err := ingredientRepo.List(c.Request.Context())
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch ingredients")
				return
			}
			c.JSON(http.StatusOK, gin.H{"ingredients": items})
		})

		admin := api.Group("/admin")
		admin.Use(AdminOnly())
		{
			admin.GET("/users", func(c *gin.Context) {
				page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
				if err != nil {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
					return
				}
				items, total, err := userRepo.List(c.Request.Context(), page, perPage)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch users")
					return
				}
				c.JSON(http.StatusOK, paginated(items, page, perPage, total))
			})

			admin.POST("/users", func(c *gin.Context) {
				var req struct {
					Name     string `json:"name"`
					Email    string `json:"email"`
					Password string `json:"password"`
					Role     string `json:"role"`
				}
				if err := c.ShouldBindJSON(&req); err != nil {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
					return
				}
				req.Name = strings.TrimSpace(req.Name)
				req.Email = strings.TrimSpace(req.Email)
				req.Role = strings.TrimSpace(req.Role)
				if req.Name == "" || req.Email == "" || req.Password == "" {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "name, email and password are required")
					return
				}
				if req.Role == "" {
					req.Role = RoleUser
				}
				if req.Role != RoleUser && req.Role != RoleAdmin && req.Role != RoleAuthor {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid role")
					return
				}

				hash, err := HashPassword(req.Password)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to hash password")
					return
				}
				ctx := c.Request.Context()
				id, err := userRepo.Create(ctx, req.Name, req.Email, hash, req.Role)
				if err != nil {
					if errors.Is(err, ErrDuplicateEmail) {
						respondError(c, http.StatusConflict, "CONFLICT", "email already exists")
						return
					}
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create user")
					return
				}

				record, err := userRepo.FindByID(ctx, id)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load created user")
					return
				}
				c.JSON(http.StatusCreated, gin.H{
					"id":         record.ID,
					"name":       record.Name,
					"email":      record.Email,
					"role":       record.Role,
					"created_at": record.CreatedAt,
				})
			})

			admin.POST("/categories", func(c *gin.Context) {
				var req struct {
					Name string `json:"name"`
				}
				if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "name is required")
					return
				}
				cat, err := categoryRepo.Create(c.Request.Context(), req.Name)
				if err != nil {
					if isUniqueViolation(err) {
						respondError(c, http.StatusConflict, "CONFLICT", "category already exists")
						return
					}
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create category")
					return
				}
				c.JSON(http.StatusCreated, cat)
			})

			admin.POST("/ingredients", func(c *gin.Context) {
				var req struct {
					Name     string `json:"name"`
					Calories int    `json:"calories"`
					Color    string `json:"color"`
				}
				if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "name is required")
					return
				}
				ing, err := ingredientRepo.Create(c.Request.Context(), req.Name, req.Calories, req.Color)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create ingredient")
					return
				}
				c.JSON(http.StatusCreated, ing)
			})

			admin.GET("/system/status", func(c *gin.Context) {
				st, err := CollectSystemStatus(c.Request.Context(), db, redisClient, sessionStore, startedAt)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load system status")
					return
				}
				c.JSON(http.StatusOK, st)
			})
		}
	}

	return r
}

func requireLogin(c *gin.Context) (Principal, bool) {
	p, ok := CurrentPrincipal(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "connexion requise")
		return Principal{}, false
	}
	return p, true
}

// formValueOr returns the trimmed form value for key when the field was
// submitted, fallback when it was absent.
func formValueOr(c *gin.Context, key, fallback string) string {
	if v, ok := c.GetPostForm(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func parseCategoryIDs(raw []string) ([]int64, error) {
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.New("category_ids must be positive integers")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func paginated(items interface{}, page, perPage, total int) gin.H {
	return gin.H{
		"items":       items,
		"page":        page,
		"per_page":    perPage,
		"total_items": total,
		"total_pages": calcTotalPages(total, perPage),
	}
}

func parsePagination(pageStr, perPageStr string) (int, int, error) {
	page := 1
	perPage := 20
	if strings.TrimSpace(pageStr) != "" {
		v, err := strconv.Atoi(pageStr)
		if err != nil || v <= 0 {
			return 0, 0, errors.New("page must be a positive integer")
		}
		page = v
	}
	if strings.TrimSpace(perPageStr) != "" {
		v, err := strconv.Atoi(perPageStr)
		if err != nil || v <= 0 || v > 100 {
			return 0, 0, errors.New("per_page must be between 1 and 100")
		}
		perPage = v
	}
	return page, perPage, nil
}

func calcTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	pages := total / perPage
	if total%perPage != 0 {
		pages++
	}
	return pages
}
