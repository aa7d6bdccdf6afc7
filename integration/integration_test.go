package integration

import (
	"database/sql"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/PuerkitoBio/goquery"
	qt "github.com/frankban/quicktest"
	"github.com/tommell/broadsheet"
)

func TestIndexPage(t *testing.T) {
	c := qt.New(t)

	c.Run("OK unauthenticated empty index page", func(c *qt.C) {
		tc := newTestContext(c)
		tc.prepareServer()

		resp, err := http.Get(tc.url("/"))
		c.Assert(err, qt.IsNil)
		c.Assert(200, qt.Equals, resp.StatusCode)
	})

	c.Run("OK unauthenticated single story index page", func(c *qt.C) {
		tc := newTestContext(c)
		tc.prepareServer()

		id, err := tc.createUser("alpha")
		c.Assert(err, qt.IsNil)

		err = tc.pgStore.InsertStory(broadsheet.NewStory("Foobar", "", id, "http://foobar.com"))
		c.Assert(err, qt.IsNil)

		resp, err := http.Get(tc.url("/"))
		c.Assert(err, qt.IsNil)
		c.Assert(200, qt.Equals, resp.StatusCode)
		defer resp.Body.Close()
		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		c.Assert("Broadsheet", qt.Equals, doc.Find("title").Text())
		a := doc.Find("a.story-url")
		url := a.AttrOr("href", "")
		text := a.Text()
		c.Assert(url, qt.Equals, "http://foobar.com")
		c.Assert(text, qt.Equals, "Foobar")
	})

	// 20 items, 3 per page
	c.Run("OK pagination", func(c *qt.C) {
		tc := newTestContext(c)
		tc.prepareServer()

		id, err := tc.createUser("alpha")
		c.Assert(err, qt.IsNil)

		for i := 0; i < 20; i++ {
			ii := strconv.Itoa(i)
			err := tc.pgStore.InsertStory(broadsheet.NewStory("Foobar"+ii, "", id, "http://foobar.com/"+ii))
			c.Assert(err, qt.IsNil)
		}

		client := tc.newAuthenticatedClient()

		// newTestContext initializes the perPage count to 3
		resp, err := client.Get(tc.url("/"))
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		c.Run("results are paginated", func(c *qt.C) {
			count := doc.Find(".story-item").Length()
			c.Assert(count, qt.Equals, 3)
		})

		c.Run("have a link to the next page on the home", func(c *qt.C) {
			link := doc.Find("a.pagination")
			_, ok := link.Attr("href")

			c.Assert(ok, qt.IsTrue)
			c.Assert(link.Length(), qt.Equals, 1)
			c.Assert(link.Text(), qt.Contains, "Next")
		})

		c.Run("have a prev and next link on the second page", func(c *qt.C) {
			link := doc.Find("a.pagination")
			href, ok := link.Attr("href")
			c.Assert(ok, qt.IsTrue)

			// go to the second page
			resp, err := client.Get(tc.url(href))
			c.Assert(err, qt.IsNil)
			defer resp.Body.Close()

			// read the dom
			ddoc, err := goquery.NewDocumentFromReader(resp.Body)
			c.Assert(err, qt.IsNil)

			// there should be two pagination links
			links := ddoc.Find("a.pagination")
			c.Assert(links.Length(), qt.Equals, 2)
			c.Assert(links.Text(), qt.Contains, "Prev")
			c.Assert(links.Text(), qt.Contains, "Next")
		})

		c.Run("prev link sends back to the previous page", func(c *qt.C) {
			link := doc.Find("a.pagination")
			href, ok := link.Attr("href")
			c.Assert(ok, qt.IsTrue)

			// go to the second page
			resp, err := client.Get(tc.url(href))
			c.Assert(err, qt.IsNil)
			defer resp.Body.Close()

			// read the dom
			ddoc, err := goquery.NewDocumentFromReader(resp.Body)
			c.Assert(err, qt.IsNil)

			// there should be two pagination links and we want the first one, Prev
			link = ddoc.Find("a.pagination").First()
			c.Assert(link.Text(), qt.Equals, "Prev")
			c.Assert(link.AttrOr("href", ""), qt.Equals, "/?page=0")
		})

		c.Run("no next link on the last page", func(c *qt.C) {
			resp, err := client.Get(tc.url("/?page=6"))
			c.Assert(err, qt.IsNil)
			defer resp.Body.Close()

			ddoc, err := goquery.NewDocumentFromReader(resp.Body)
			c.Assert(err, qt.IsNil)

			links := ddoc.Find("a.pagination")
			c.Assert(links.Length(), qt.Equals, 1)
			c.Assert(links.Text(), qt.Equals, "Prev")
		})
	})

	c.Run("show and ask filters narrow down by title prefix", func(c *qt.C) {
		tc := newTestContext(c)
		tc.prepareServer()

		id, err := tc.createUser("alpha")
		c.Assert(err, qt.IsNil)

		c.Assert(tc.pgStore.InsertStory(broadsheet.NewStory("Show: my thing", "", id, "http://a.com")), qt.IsNil)
		c.Assert(tc.pgStore.InsertStory(broadsheet.NewStory("Ask: how do I", "made of questions", id, "")), qt.IsNil)
		c.Assert(tc.pgStore.InsertStory(broadsheet.NewStory("plain story", "", id, "http://b.com")), qt.IsNil)

		resp, err := http.Get(tc.url("/?show"))
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		c.Assert(doc.Find(".story-item").Length(), qt.Equals, 1)
		c.Assert(doc.Find("a.story-url").Text(), qt.Equals, "Show: my thing")

		resp, err = http.Get(tc.url("/?ask"))
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		doc, err = goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		c.Assert(doc.Find(".story-item").Length(), qt.Equals, 1)
		c.Assert(doc.Find("a.story-title").Text(), qt.Equals, "Ask: how do I")
	})
}

func TestSubmitStory(t *testing.T) {
	c := qt.New(t)

	c.Run("there is no submit link when not authenticated", func(c *qt.C) {
		tc := newTestContext(c)
		tc.prepareServer()

		client := tc.newHTTPClient()
		resp, err := client.Get(tc.url("/"))
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		submitEl := doc.Find("nav a").FilterFunction(func(_ int, sel *goquery.Selection) bool {
			return sel.Text() == "Submit"
		}).Length()
		c.Assert(submitEl, qt.Equals, 0)
	})

	c.Run("cannot submit a story while not authenticated", func(c *qt.C) {
		tc := newTestContext(c)
		tc.prepareServer()

		client := tc.newHTTPClient()
		values := url.Values{
			"title": []string{"Captain Nemo"},
			"url":   []string{"http://duckduckgo.com"},
		}
		resp, err := client.PostForm(tc.url("/submit"), values)
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 401)
	})

	c.Run("submit with a link and a title", func(c *qt.C) {
		tc := newTestContext(c)
		tc.prepareServer()

		client := tc.newAuthenticatedClient()
		values := url.Values{
			"title": []string{"Captain Nemo"},
			"url":   []string{"http://duckduckgo.com"},
		}
		resp, err := client.PostForm(tc.url("/submit"), values)
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		c.Assert(resp.StatusCode, qt.Equals, 200)
	})

	c.Run("submit without a link but with a body and a title", func(c *qt.C) {
		tc := newTestContext(c)
		tc.prepareServer()

		client := tc.newAuthenticatedClient()
		values := url.Values{
			"title": []string{"How do I git gud at coding"},
			"body":  []string{"Someone told me I must learn assembly"},
		}
		resp, err := client.PostForm(tc.url("/submit"), values)
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		c.Assert(resp.StatusCode, qt.Equals, 200)
	})

	c.Run("cannot submit with both a link and a body", func(c *qt.C) {
		tc := newTestContext(c)
		tc.prepareServer()

		client := tc.newAuthenticatedClient()
		values := url.Values{
			"title": []string{"Captain Nemo"},
			"url":   []string{"http://duckduckgo.com"},
			"body":  []string{"a link needs no body"},
		}
		resp, err := client.PostForm(tc.url("/submit"), values)
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		c.Assert(resp.StatusCode, qt.Equals, 400)
	})

	c.Run("cannot submit without a link and without a body", func(c *qt.C) {
		tc := newTestContext(c)
		tc.prepareServer()

		client := tc.newAuthenticatedClient()
		values := url.Values{
			"title": []string{"Captain Nemo"},
		}
		resp, err := client.PostForm(tc.url("/submit"), values)
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		c.Assert(resp.StatusCode, qt.Equals, 400)
	})

	c.Run("cannot submit without a title", func(c *qt.C) {
		tc := newTestContext(c)
		tc.prepareServer()

		client := tc.newAuthenticatedClient()
		values := url.Values{
			"body": []string{"errrrr"},
		}
		resp, err := client.PostForm(tc.url("/submit"), values)
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		c.Assert(resp.StatusCode, qt.Equals, 400)
	})

	c.Run("trim spaces on title when submitting a story", func(c *qt.C) {
		tc := newTestContext(c)
		tc.prepareServer()

		client := tc.newAuthenticatedClient()
		values := url.Values{
			"title": []string{"Foo      "},
			"url":   []string{"http://foobar"},
		}

		resp, err := client.PostForm(tc.url("/submit"), values)
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		c.Assert(resp.StatusCode, qt.Equals, 200)

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)
		title := doc.Find("a.story-url").Text()
		c.Assert(title, qt.Equals, "Foo")
	})
}

func TestAuthentication(t *testing.T) {
	c := qt.New(t)

	c.Run("signing in", func(c *qt.C) {
		tc := newTestContext(c)
		tc.prepareServer()
		client := tc.newHTTPClient()

		resp, err := client.Get(tc.url("/oauth/start"))
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)
		login := doc.Find("a#session-login").Text()
		c.Assert(login, qt.Contains, "fakeLogin")
	})

	c.Run("signing out", func(c *qt.C) {
		tc := newTestContext(c)
		tc.prepareServer()
		client := tc.newAuthenticatedClient()

		resp, err := client.Get(tc.url("/"))
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		logoutPath, ok := doc.Find("a#session-signout").Attr("href")
		c.Assert(ok, qt.IsTrue)

		resp, err = client.Get(tc.url(logoutPath))
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		doc, err = goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)
		_, ok = doc.Find("a#session-signin").Attr("href")
		c.Assert(ok, qt.IsTrue)
	})

	c.Run("password registration and login", func(c *qt.C) {
		tc := newTestContext(c)
		tc.prepareServer()
		client := tc.newHTTPClient()

		values := url.Values{
			"username": []string{"bernard"},
			"email":    []string{"bernard@example.com"},
			"password": []string{"hunter2hunter2"},
		}
		resp, err := client.PostForm(tc.url("/register"), values)
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)
		c.Assert(doc.Find("a#session-login").Text(), qt.Equals, "bernard")

		c.Run("registering the same username again fails", func(c *qt.C) {
			other := tc.newHTTPClient()
			resp, err := other.PostForm(tc.url("/register"), values)
			c.Assert(err, qt.IsNil)
			defer resp.Body.Close()

			doc, err := goquery.NewDocumentFromReader(resp.Body)
			c.Assert(err, qt.IsNil)
			c.Assert(doc.Find("p.form-error").Text(), qt.Contains, "already taken")
		})

		c.Run("logging in with the right password", func(c *qt.C) {
			other := tc.newHTTPClient()
			resp, err := other.PostForm(tc.url("/login"), url.Values{
				"username": []string{"bernard"},
				"password": []string{"hunter2hunter2"},
			})
			c.Assert(err, qt.IsNil)
			defer resp.Body.Close()

			doc, err := goquery.NewDocumentFromReader(resp.Body)
			c.Assert(err, qt.IsNil)
			c.Assert(doc.Find("a#session-login").Text(), qt.Equals, "bernard")
		})

		c.Run("logging in with a wrong password", func(c *qt.C) {
			other := tc.newHTTPClient()
			resp, err := other.PostForm(tc.url("/login"), url.Values{
				"username": []string{"bernard"},
				"password": []string{"wrong password"},
			})
			c.Assert(err, qt.IsNil)
			defer resp.Body.Close()

			doc, err := goquery.NewDocumentFromReader(resp.Body)
			c.Assert(err, qt.IsNil)
			c.Assert(doc.Find("p.form-error").Text(), qt.Contains, "invalid username or password")
		})
	})
}

func TestStoryVoting(t *testing.T) {
	c := qt.New(t)
	tc := newTestContext(c)
	tc.prepareServer()

	id, err := tc.createUser("alpha")
	c.Assert(err, qt.IsNil)

	err = tc.pgStore.InsertStory(broadsheet.NewStory("Foobar", "", id, "http://foobar.com"))
	c.Assert(err, qt.IsNil)

	client := tc.newAuthenticatedClient()
	resp, err := client.Get(tc.url("/"))
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, 200)
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	c.Assert(err, qt.IsNil)

	var voteAction string

	c.Run("click on the upvote arrow", func(c *qt.C) {
		// Find the upvote button
		action, ok := doc.Find(".voters form.upvoter").Attr("action")
		c.Assert(ok, qt.IsTrue)
		voteAction = action

		resp, err = client.PostForm(tc.url(action), nil)
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()

		doc, err = goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		// The story karma should be 2 (starting point plus this upvote)
		c.Assert(doc.Find("span.story-meta").Text(), qt.Contains, "2 by alpha, today")
	})

	c.Run("upvote form flips to an unvote form after voting", func(c *qt.C) {
		c.Assert(doc.Find(".voters form.upvoter").Length(), qt.Equals, 0)
		c.Assert(doc.Find(".voters form.unvoter").Length(), qt.Equals, 1)
	})

	c.Run("voting again warns instead of double counting", func(c *qt.C) {
		resp, err := client.PostForm(tc.url(voteAction), nil)
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()

		ddoc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		c.Assert(ddoc.Find("p.notice").Text(), qt.Contains, "already voted")
		c.Assert(ddoc.Find("span.story-meta").Text(), qt.Contains, "2 by alpha, today")
	})

	c.Run("unvoting restores the karma", func(c *qt.C) {
		action, ok := doc.Find(".voters form.unvoter").Attr("action")
		c.Assert(ok, qt.IsTrue)

		resp, err := client.PostForm(tc.url(action), nil)
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()

		ddoc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		c.Assert(ddoc.Find("span.story-meta").Text(), qt.Contains, "1 by alpha, today")
		c.Assert(ddoc.Find(".voters form.upvoter").Length(), qt.Equals, 1)
	})

	c.Run("cannot downvote below the karma threshold", func(c *qt.C) {
		// a fresh account holds a single karma point, below the threshold
		client := tc.newAuthenticatedClient()

		resp, err := client.PostForm(tc.url(voteAction), url.Values{"dir": []string{"down"}})
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()

		ddoc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		c.Assert(ddoc.Find("p.notice").Text(), qt.Contains, "downvoting requires at least 5 karma")
	})

	c.Run("cannot vote on your own story", func(c *qt.C) {
		client := tc.newAuthenticatedClient()
		values := url.Values{
			"title": []string{"my own story"},
			"url":   []string{"http://mine.com"},
		}
		resp, err := client.PostForm(tc.url("/submit"), values)
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()

		// back to the front page where the fresh story shows an upvote form
		resp, err = client.Get(tc.url("/"))
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		var action string
		doc.Find(".story-item").Each(func(_ int, sel *goquery.Selection) {
			if sel.Find("a.story-url").Text() == "my own story" {
				action = sel.Find("form.upvoter").AttrOr("action", "")
			}
		})
		c.Assert(action, qt.Not(qt.Equals), "")

		resp, err = client.PostForm(tc.url(action), nil)
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()

		ddoc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		c.Assert(ddoc.Find("p.notice").Text(), qt.Contains, "your own content")
	})

	c.Run("voting on a missing story is a 404", func(c *qt.C) {
		client := tc.newAuthenticatedClient()
		resp, err := client.PostForm(tc.url("/stories/666666/vote"), nil)
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		c.Assert(resp.StatusCode, qt.Equals, 404)
	})

	c.Run("upvote placeholder links to sign in when unauthenticated", func(c *qt.C) {
		client := tc.newHTTPClient()
		resp, err := client.Get(tc.url("/"))
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		href, ok := doc.Find("a.voters-inactive").Attr("href")
		c.Assert(ok, qt.IsTrue, qt.Commentf("cannot find placeholder for unauthenticated upvotes"))
		c.Assert(href, qt.Equals, "/login")
	})
}

func TestCommentsSubmitting(t *testing.T) {
	c := qt.New(t)
	tc := newTestContext(c)
	tc.prepareServer()

	id, err := tc.createUser("alpha")
	c.Assert(err, qt.IsNil)

	// create a story to comment on
	story := broadsheet.NewStory("Foobar", "", id, "http://foobar.com")
	err = tc.pgStore.InsertStory(story)
	c.Assert(err, qt.IsNil)

	client := tc.newAuthenticatedClient()
	resp, err := client.Get(tc.url("/"))
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, 200)
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	c.Assert(err, qt.IsNil)

	storyPath, ok := doc.Find("a.story-comments").Attr("href")
	c.Assert(ok, qt.IsTrue)

	c.Run("story comments count is pluralized when there are zero comments", func(c *qt.C) {
		c.Assert(doc.Find("a.story-comments").Text(), qt.Contains, "0 Comments")
	})

	c.Run("submit button is disabled for unauthenticated users", func(c *qt.C) {
		client := tc.newHTTPClient()

		resp, err := client.Get(tc.url(storyPath))
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		_, ok := doc.Find("form.new-comment-form input[type=submit]").Attr("disabled")
		c.Assert(ok, qt.IsTrue)
	})

	c.Run("cannot post a comment while unauthenticated", func(c *qt.C) {
		client := tc.newHTTPClient()

		values := url.Values{
			"body":      []string{"very insightful comment"},
			"parent-id": []string{""},
		}

		resp, err := client.PostForm(tc.url(storyPath), values)
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 401)
		defer resp.Body.Close()
	})

	c.Run("submit a comment", func(c *qt.C) {
		resp, err := client.Get(tc.url(storyPath))
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		action, ok := doc.Find("form.new-comment-form").First().Attr("action")
		c.Assert(ok, qt.IsTrue)

		values := url.Values{
			"body":      []string{"very insightful comment"},
			"parent-id": []string{""},
		}

		resp, err = client.PostForm(tc.url(action), values)
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		doc, err = goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)
		c.Assert(doc.Find(".comment-body").Text(), qt.Contains, "very insightful comment")
		c.Assert(doc.Find(".comment-meta").Text(), qt.Contains, "fakeLogin0, 1 point, today")
	})

	c.Run("story comments count is singular when there is one comment", func(c *qt.C) {
		resp, err := client.Get(tc.url("/"))
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		c.Assert(doc.Find("a.story-comments").Text(), qt.Contains, "1 Comment")
	})

	c.Run("submitting a subcomment", func(c *qt.C) {
		resp, err := client.Get(tc.url(storyPath))
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		action, ok := doc.Find("form.new-comment-form").First().Attr("action")
		c.Assert(ok, qt.IsTrue)

		parentCommentID, ok := doc.Find("input[type=hidden][name=parent-id][value!='']").Attr("value")
		c.Assert(ok, qt.IsTrue)
		c.Assert(parentCommentID, qt.Not(qt.Equals), "")

		values := url.Values{
			"body":      []string{"colorful comment"},
			"parent-id": []string{parentCommentID},
		}

		resp, err = client.PostForm(tc.url(action), values)
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		doc, err = goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)
		c.Assert(doc.Find(".comment-body").Text(), qt.Contains, "colorful comment")
		c.Assert(doc.Find(".comment-children .comment-body").Text(), qt.Contains, "colorful comment")
	})
}

func TestCommentsVoting(t *testing.T) {
	c := qt.New(t)
	tc := newTestContext(c)
	tc.prepareServer()

	id, err := tc.createUser("alpha")
	c.Assert(err, qt.IsNil)

	// create a story to comment on
	story := broadsheet.NewStory("Foobar", "", id, "http://foobar.com")
	err = tc.pgStore.InsertStory(story)
	c.Assert(err, qt.IsNil)

	// create a comment to upvote
	comment := broadsheet.NewComment(story.ID, sql.NullInt64{}, "kudos", id)
	err = tc.pgStore.InsertComment(comment)
	c.Assert(err, qt.IsNil)

	client := tc.newAuthenticatedClient()
	storyPath := "/stories/" + strconv.FormatInt(story.ID, 10) + "/comments"

	resp, err := client.Get(tc.url(storyPath))
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, 200)
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	c.Assert(err, qt.IsNil)

	c.Run("click on the upvote arrow", func(c *qt.C) {
		// Find the upvote button on the comment, not the story
		action, ok := doc.Find(".comment .voters form.upvoter").Attr("action")
		c.Assert(ok, qt.IsTrue)

		resp, err = client.PostForm(tc.url(action), nil)
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()

		doc, err = goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		// The comment karma should be 2 (starting point plus this upvote)
		c.Assert(doc.Find("span.comment-meta").Text(), qt.Contains, "alpha, 2 points, today")
	})

	c.Run("upvote form flips to an unvote form after voting", func(c *qt.C) {
		c.Assert(doc.Find(".comment .voters form.upvoter").Length(), qt.Equals, 0)
		c.Assert(doc.Find(".comment .voters form.unvoter").Length(), qt.Equals, 1)
	})

	c.Run("unvoting the comment restores its karma", func(c *qt.C) {
		action, ok := doc.Find(".comment .voters form.unvoter").Attr("action")
		c.Assert(ok, qt.IsTrue)

		resp, err := client.PostForm(tc.url(action), nil)
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()

		ddoc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		c.Assert(ddoc.Find("span.comment-meta").Text(), qt.Contains, "alpha, 1 point, today")
	})
}

func TestCommentEditingAndDeleting(t *testing.T) {
	c := qt.New(t)
	tc := newTestContext(c)
	tc.prepareServer()

	id, err := tc.createUser("alpha")
	c.Assert(err, qt.IsNil)

	story := broadsheet.NewStory("Foobar", "", id, "http://foobar.com")
	err = tc.pgStore.InsertStory(story)
	c.Assert(err, qt.IsNil)

	storyPath := "/stories/" + strconv.FormatInt(story.ID, 10) + "/comments"

	client := tc.newAuthenticatedClient()

	// post a comment as the authenticated fake user
	values := url.Values{
		"body":      []string{"original wording"},
		"parent-id": []string{""},
	}
	resp, err := client.PostForm(tc.url(storyPath), values)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, 200)
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	c.Assert(err, qt.IsNil)

	c.Run("the author sees an edit link inside the window", func(c *qt.C) {
		editPath, ok := doc.Find("a.comment-edit").Attr("href")
		c.Assert(ok, qt.IsTrue)

		resp, err := client.Get(tc.url(editPath))
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		edoc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)
		c.Assert(edoc.Find("form.edit-comment-form textarea").Text(), qt.Contains, "original wording")

		action, ok := edoc.Find("form.edit-comment-form").Attr("action")
		c.Assert(ok, qt.IsTrue)

		resp, err = client.PostForm(tc.url(action), url.Values{"body": []string{"better wording"}})
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		udoc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)
		c.Assert(udoc.Find(".comment-body").Text(), qt.Contains, "better wording")
	})

	c.Run("someone else cannot edit the comment", func(c *qt.C) {
		other := tc.newAuthenticatedClient()

		editPath, ok := doc.Find("a.comment-edit").Attr("href")
		c.Assert(ok, qt.IsTrue)

		resp, err := other.PostForm(tc.url(editPath[:len(editPath)-len("/edit")]+"/update"),
			url.Values{"body": []string{"vandalism"}})
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		c.Assert(resp.StatusCode, qt.Equals, 403)
	})

	c.Run("deleting masks the comment but keeps its spot", func(c *qt.C) {
		resp, err := client.Get(tc.url(storyPath))
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()

		ddoc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		action, ok := ddoc.Find("form.comment-delete").Attr("action")
		c.Assert(ok, qt.IsTrue)

		resp, err = client.PostForm(tc.url(action), nil)
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		deldoc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)
		c.Assert(deldoc.Find(".comment-body").Text(), qt.Contains, "[deleted]")
		c.Assert(deldoc.Find(".comment-meta").Text(), qt.Not(qt.Contains), "fakeLogin0")
	})
}

func TestUserProfile(t *testing.T) {
	c := qt.New(t)
	tc := newTestContext(c)
	tc.prepareServer()

	client := tc.newAuthenticatedClient()

	// submit a story so the profile has something to list
	values := url.Values{
		"title": []string{"my story"},
		"url":   []string{"http://mine.com"},
	}
	resp, err := client.PostForm(tc.url("/submit"), values)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, 200)
	defer resp.Body.Close()

	c.Run("the profile lists the user's stories", func(c *qt.C) {
		resp, err := client.Get(tc.url("/users/fakeLogin0"))
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)

		c.Assert(doc.Find("h1.user-name").Text(), qt.Equals, "fakeLogin0")
		c.Assert(doc.Find("a.story-url").Text(), qt.Equals, "my story")
	})

	c.Run("the owner can update their about text", func(c *qt.C) {
		resp, err := client.PostForm(tc.url("/users/fakeLogin0"), url.Values{
			"about": []string{"I write tests"},
		})
		c.Assert(err, qt.IsNil)
		c.Assert(resp.StatusCode, qt.Equals, 200)
		defer resp.Body.Close()

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)
		c.Assert(doc.Find(".user-about").Text(), qt.Contains, "I write tests")
	})

	c.Run("someone else cannot update the profile", func(c *qt.C) {
		other := tc.newAuthenticatedClient()
		resp, err := other.PostForm(tc.url("/users/fakeLogin0"), url.Values{
			"about": []string{"graffiti"},
		})
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		c.Assert(resp.StatusCode, qt.Equals, 403)
	})

	c.Run("unknown users are a 404", func(c *qt.C) {
		resp, err := http.Get(tc.url("/users/nobody"))
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		c.Assert(resp.StatusCode, qt.Equals, 404)
	})
}
