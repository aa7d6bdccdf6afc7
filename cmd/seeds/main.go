package main

import (
	"database/sql"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tommell/broadsheet"
	"github.com/tommell/broadsheet/cmd"
	"github.com/tommell/broadsheet/pgstore"
)

var users = []string{"tintin", "milou", "haddock", "castafiore", "tournesol"}
var lorem = `Globular star cluster star stuff harvesting star light gathered by gravity take root and flourish vastness is bearable only through love Orion's sword. The only home we've ever known a still more glorious dawn awaits hearts of the stars culture a mote of dust suspended in a sunbeam a mote of dust suspended in a sunbeam. Courage of our questions two ghostly white figures in coveralls and helmets are softly dancing tingling of the spine courage of our questions made in the interiors of collapsing stars hearts of the stars.
Dispassionate extraterrestrial observer consciousness cosmic ocean preserve and cherish that pale blue dot brain is the seed of intelligence Hypatia? Circumnavigated the sky calls to us courage of our questions hearts of the stars take root and flourish how far away. Tendrils of gossamer clouds rich in heavy atoms vanquish the impossible another world with pretty stories for which there's little good evidence rich in heavy atoms? A very small stage in a vast cosmic arena courage of our questions descended from astronomers a very small stage in a vast cosmic arena tendrils of gossamer clouds Tunguska event.
Rogue white dwarf ship of the imagination of brilliant syntheses gathered by gravity from which we spring. Astonishment extraordinary claims require extraordinary evidence a mote of dust suspended in a sunbeam a mote of dust suspended in a sunbeam paroxysm of global death intelligent beings. Network of wormholes concept of the number one network of wormholes rich in heavy atoms the only home we've ever known realm of the galaxies.
Of brilliant syntheses culture the carbon in our apple pies something incredible is waiting to be known light years the only home we've ever known. Rings of Uranus paroxysm of global death laws of physics are creatures of the cosmos take root and flourish prime number. Extraplanetary Orion's sword permanence of the stars rich in heavy atoms invent the universe a still more glorious dawn awaits? Citizens of distant epochs Sea of Tranquility invent the universe with pretty stories for which there's little good evidence Sea of Tranquility Sea of Tranquility.
Globular star cluster Euclid tendrils of gossamer clouds another world venture bits of moving fluff. Made in the interiors of collapsing stars the only home we've ever known a still more glorious dawn awaits two ghostly white figures in coveralls and helmets are softly dancing hearts of the stars Sea of Tranquility? Permanence of the stars network of wormholes a still more glorious dawn awaits the ash of stellar alchemy the only home we've ever known invent the universe.
Quasar vastness is bearable only through love prime number dispassionate extraterrestrial observer Vangelis brain is the seed of intelligence. Muse about a very small stage in a vast cosmic arena the ash of stellar alchemy something incredible is waiting to be known something incredible is waiting to be known Sea of Tranquility? Concept of the number one Tunguska event hearts of the stars descended from astronomers extraordinary claims require extraordinary evidence hydrogen atoms.
We are the legacy of 15 billion years of cosmic evolution. We have a choice. We can enhance life and come to know the universe that made us, or we can squander our 15 billion year heritage in meaningless self-destruction. What happens in the first second of the next cosmic year depends on what we do, here and now, with our intelligence, and our knowledge of the cosmos.
`

func breakLorem() []string {
	strs := regexp.MustCompile("[!?.] ").Split(lorem, -1)
	var res []string
	for _, s := range strs {
		r := strings.TrimSpace(s)
		if len(r) > 50 {
			idx := 0
			for i, r := range s[50:] {
				if r == ' ' {
					idx = i
					break
				}
			}

			r = s[0 : 50+idx]
		}
		res = append(res, r)
	}

	return res
}

func main() {
	cfg := cmd.DefaultConfig()
	err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot read configuration")
	}
	logger := cmd.SetupLogger(cfg)
	logger.Info().Msg("Seeding database")

	pg := pgstore.New(cfg.DatabaseAddr(), cfg.KarmaIncrement())
	err = pg.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("Can't connect to database")
	}
	err = pg.Migrate()
	if err != nil {
		log.Fatal().Err(err).Msg("Can't migrate database")
	}

	// We're going to break the lorem string into multiple pieces, turn them
	// into stories whose authors are newly created users.
	strs := breakLorem()

	var userIDs []int64
	for _, u := range users {
		id, err := pg.CreateOrUpdateUser(u, u+"@gmail.com")
		if err != nil {
			log.Fatal().Err(err).Msg("Can't create user")
		}
		userIDs = append(userIDs, id)
	}

	// let's now add the stories
	var stories []*broadsheet.Story
	for i, title := range strs {
		authorID := userIDs[i%len(userIDs)]
		story := broadsheet.NewStory(title, "", authorID, "https://duckduckgo.com")
		err = pg.InsertStory(story)
		if err != nil {
			log.Fatal().Err(err).Msg("Can't create story")
		}

		stories = append(stories, story)
	}

	// let's add some comments on the stories
	for i, story := range stories {
		authorID := userIDs[i%len(userIDs)]
		body := strs[i%len(strs)]

		comment := broadsheet.NewComment(story.ID, sql.NullInt64{}, body, authorID)
		err := pg.InsertComment(comment)
		if err != nil {
			log.Fatal().Err(err).Msg("Can't create comment")
		}

		// add some subcomments
		for j := 0; j < i%4; j++ {
			authorID := userIDs[j%len(userIDs)]
			body := strs[j%len(strs)]
			subcomment := broadsheet.NewComment(story.ID, sql.NullInt64{Int64: comment.ID, Valid: true}, body, authorID)
			err := pg.InsertComment(subcomment)
			if err != nil {
				log.Fatal().Err(err).Msg("Can't create sub-comment")
			}
		}
	}

	// sprinkle votes around so the ranked front page has some texture
	for i, story := range stories {
		for j, voterID := range userIDs {
			if voterID == story.AuthorID || (i+j)%3 != 0 {
				continue
			}
			vote := broadsheet.NewVote(voterID, story.ID, broadsheet.TargetStory, true)
			if err := pg.ApplyVote(vote, story.AuthorID); err != nil {
				log.Fatal().Err(err).Msg("Can't create vote")
			}
		}
	}
}
