package expense

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		scanner     *mockScanner
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		scanner = newMockScanner()
		auth = BasicAuth{}
		service = NewServiceWithDeps(db, scanner, newMockStorage(), newMockRates(),
			&mockIDGenerator{id: "test-id-123"}, &defaultTimeSource{})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleCreateTrip", func() {
		When("the request is valid", func() {
			It("should return status Created with the trip", func() {
				body := bytes.NewBufferString(`{"name":"Japan 2024","base_currency":"JPY"}`)
				resp, err := http.Post(ghttpServer.URL()+"/api/trips", "application/json", body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var trip Trip
				Expect(json.NewDecoder(resp.Body).Decode(&trip)).NotTo(HaveOccurred())
				Expect(trip.Name).To(Equal("Japan 2024"))
				Expect(trip.BaseCurrency).To(Equal("JPY"))
			})
		})

		When("the body is not JSON", func() {
			It("should return status Bad Request", func() {
				body := bytes.NewBufferString("not json")
				resp, err := http.Post(ghttpServer.URL()+"/api/trips", "application/json", body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the currency code is malformed", func() {
			It("should return a JSON error", func() {
				body := bytes.NewBufferString(`{"name":"Japan","base_currency":"YEN!"}`)
				resp, err := http.Post(ghttpServer.URL()+"/api/trips", "application/json", body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var errResp map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&errResp)).NotTo(HaveOccurred())
				Expect(errResp["error"]).To(ContainSubstring("3-letter code"))
			})
		})
	})

	Describe("handleListTrips", func() {
		When("trips exist", func() {
			BeforeEach(func() {
				db.trips["trip-1"] = &Trip{ID: "trip-1", Name: "Japan"}
				db.trips["trip-2"] = &Trip{ID: "trip-2", Name: "Italy"}
			})

			It("should return all trips as JSON", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/trips")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var trips []*Trip
				Expect(json.NewDecoder(resp.Body).Decode(&trips)).NotTo(HaveOccurred())
				Expect(trips).To(HaveLen(2))
			})
		})

		When("the service returns an error", func() {
			BeforeEach(func() {
				db.listTripsErr = errors.New("service error")
			})

			It("should return status Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/trips")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				resp.Body.Close()
			})
		})
	})

	Describe("handleGetTrip", func() {
		When("the trip exists", func() {
			BeforeEach(func() {
				db.trips["trip-1"] = &Trip{ID: "trip-1", Name: "Japan"}
			})

			It("should return the trip", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/trips/trip-1")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var trip Trip
				Expect(json.NewDecoder(resp.Body).Decode(&trip)).NotTo(HaveOccurred())
				Expect(trip.ID).To(Equal("trip-1"))
			})
		})

		When("the trip does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/trips/nonexistent")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("handleDeleteTrip", func() {
		BeforeEach(func() {
			db.trips["trip-1"] = &Trip{ID: "trip-1", Name: "Japan"}
		})

		It("should return status No Content", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/trips/trip-1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()
			Expect(db.trips).NotTo(HaveKey("trip-1"))
		})
	})

	Describe("handleTripSummary", func() {
		BeforeEach(func() {
			db.trips["trip-1"] = &Trip{ID: "trip-1", BaseCurrency: "USD"}
			db.expenses["e1"] = &Expense{
				ID: "e1", TripID: "trip-1",
				CurrencyCode: "EUR", AmountForeign: 100, AmountBase: 110,
			}
		})

		It("should return the summary", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/trips/trip-1/summary")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var summary TripSummary
			Expect(json.NewDecoder(resp.Body).Decode(&summary)).NotTo(HaveOccurred())
			Expect(summary.ExpenseCount).To(Equal(1))
			Expect(summary.Total).To(Equal(110.0))
			Expect(summary.TotalDisplay).To(Equal("$110.00"))
		})
	})

	Describe("handleAddExpense", func() {
		BeforeEach(func() {
			db.trips["trip-1"] = &Trip{ID: "trip-1", BaseCurrency: "USD"}
		})

		When("the request is valid", func() {
			It("should return status Created with the converted expense", func() {
				body := bytes.NewBufferString(`{"merchant":"Cafe Milano","currency_code":"EUR","amount":45}`)
				resp, err := http.Post(ghttpServer.URL()+"/api/trips/trip-1/expenses", "application/json", body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var expense Expense
				Expect(json.NewDecoder(resp.Body).Decode(&expense)).NotTo(HaveOccurred())
				Expect(expense.AmountForeign).To(Equal(45.0))
				Expect(expense.AmountBase).To(BeNumerically("~", 49.5))
			})
		})

		When("the amount is missing", func() {
			It("should return a JSON error", func() {
				body := bytes.NewBufferString(`{"merchant":"Cafe Milano"}`)
				resp, err := http.Post(ghttpServer.URL()+"/api/trips/trip-1/expenses", "application/json", body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var errResp map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&errResp)).NotTo(HaveOccurred())
				Expect(errResp["error"]).To(ContainSubstring("amount must be positive"))
			})
		})
	})

	Describe("handleUploadReceipt", func() {
		var (
			body        *bytes.Buffer
			contentType string
		)

		BeforeEach(func() {
			db.trips["trip-1"] = &Trip{ID: "trip-1", BaseCurrency: "USD"}

			body = &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			part, err := writer.CreateFormFile("file", "receipt.jpg")
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte("fake image data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).NotTo(HaveOccurred())
			contentType = writer.FormDataContentType()
		})

		When("processing succeeds", func() {
			It("should return status Created with the parsed expense", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/trips/trip-1/receipts", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var expense Expense
				Expect(json.NewDecoder(resp.Body).Decode(&expense)).NotTo(HaveOccurred())
				Expect(expense.Merchant).To(Equal("Cafe Milano"))
				Expect(expense.AmountForeign).To(Equal(45.0))
				Expect(expense.Confidence).To(HaveKeyWithValue("amount", 0.9))
			})
		})

		When("transcription fails", func() {
			BeforeEach(func() {
				scanner.scanErr = errors.New("scan error")
			})

			It("should return a JSON error", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/trips/trip-1/receipts", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var errResp map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&errResp)).NotTo(HaveOccurred())
				Expect(errResp["error"]).To(ContainSubstring("transcribing receipt"))
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				empty := &bytes.Buffer{}
				writer := multipart.NewWriter(empty)
				Expect(writer.Close()).NotTo(HaveOccurred())

				resp, err := http.Post(ghttpServer.URL()+"/api/trips/trip-1/receipts", writer.FormDataContentType(), empty)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("handleGetExpenseFile", func() {
		When("the expense has a file", func() {
			BeforeEach(func() {
				storage := newMockStorage()
				storage.files["e1_receipt.jpg"] = []byte("file data")
				db.expenses["e1"] = &Expense{
					ID: "e1", Filename: "e1_receipt.jpg", ContentType: "image/jpeg",
				}
				service = NewServiceWithDeps(db, scanner, storage, newMockRates(),
					&mockIDGenerator{id: "test-id-123"}, &defaultTimeSource{})
				server = NewServerWithMux(service, auth, http.NewServeMux())
				setupServer()
			})

			It("should return the file with its content type", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/expenses/e1/file")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))

				data, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("file data"))
			})
		})

		When("the expense does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/expenses/nonexistent/file")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
			server = NewServerWithMux(service, auth, http.NewServeMux())
			setupServer()
		})

		When("no credentials are provided", func() {
			It("should return status Unauthorized", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/trips")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
				resp.Body.Close()
			})
		})

		When("wrong credentials are provided", func() {
			It("should return status Unauthorized", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/trips", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("user:wrong")))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				resp.Body.Close()
			})
		})

		When("correct credentials are provided", func() {
			It("should return status OK", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/trips", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("user", "pass")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})
	})
})
