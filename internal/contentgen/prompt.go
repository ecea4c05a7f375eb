package contentgen

// seoPromptIntro opens every generation prompt. Update this text centrally so
// every call stays in sync.
const seoPromptIntro = `You are an expert SEO content creator and podcast marketing specialist. Your task is to analyze the following podcast transcript and generate comprehensive, discoverable, and viral SEO content.`

// seoPromptRequirements closes the prompt with the content requirements and
// the exact JSON shape the decoder expects.
const seoPromptRequirements = `Please generate the following content in JSON format:

1. SEO-Friendly Title: a compelling, keyword-rich title (50-60 characters) that would rank well in search engines and attract clicks.

2. Show Notes: 5-8 show notes with timestamps. Each includes:
   - timestamp (MM:SS format)
   - topic (concise topic name)
   - summary (1-2 sentence description)

3. SEO Blog Post:
   - title: SEO-optimized title (different from the main title)
   - meta_description: 150-160 characters for search results
   - intro: engaging 2-3 paragraph introduction
   - body: comprehensive content with H2/H3 headings, naturally incorporating keywords
   - conclusion: strong closing with call-to-action
   - tags: 8-12 relevant SEO tags/keywords

4. Social Media Posts:
   - twitter: hook-style tweet (280 chars max) with relevant hashtags
   - instagram: engaging caption with 10-15 hashtags and emoji
   - tiktok: trending-style caption with viral hooks and hashtags
   - linkedin: professional post focusing on insights and value

Content guidelines: focus on discoverability and viral potential, use trending keywords, make content actionable and valuable, include relevant industry terminology, and optimize for each platform's algorithm.

You must respond ONLY with a JSON object like:
{"seo_title": "...", "show_notes": [{"timestamp": "MM:SS", "topic": "...", "summary": "..."}], "blog_post": {"title": "...", "meta_description": "...", "intro": "...", "body": "...", "conclusion": "...", "tags": ["..."]}, "social_media": {"twitter": "...", "instagram": "...", "tiktok": "...", "linkedin": "..."}}`
